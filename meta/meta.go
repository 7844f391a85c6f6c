// meta/meta.go
package meta

// SENTINEL marks an encoded field that the battle document did not address.
const SENTINEL = -1.0

// SOCKET_DIR is where player and manager sockets are bound.
const SOCKET_DIR = "/tmp"

// SOCKET_RAND_LEN is the length of the random suffix reserved for socket names.
const SOCKET_RAND_LEN = 0xf

// SUN_PATH_LEN is the size of sockaddr_un.sun_path on Linux.
const SUN_PATH_LEN = 108

// MAX_NAME_LENGTH is the longest player or manager name that still fits a socket path:
// SOCKET_DIR, a slash, the name, the random suffix and the terminating NUL.
const MAX_NAME_LENGTH = SUN_PATH_LEN - len(SOCKET_DIR) - 1 - SOCKET_RAND_LEN - 1

// MAX_TURNS caps the driver loop when the engine never reports the end of a battle.
const MAX_TURNS = 1000

// PARTY_SIZE is the number of Pokemon slots per side.
const PARTY_SIZE = 6

// MOVE_SLOTS is the number of move slots per Pokemon.
const MOVE_SLOTS = 4

// NUM_SIDES is the number of sides in a battle, self first.
const NUM_SIDES = 2
