package protocol

import "fmt"

// Opcode identifies a packet type. Every framed packet starts with its
// opcode as a little-endian u16.
type Opcode uint16

// Opcodes understood by the login and channel services. Gameplay
// opcodes live with their handlers and are not enumerated here.
const (
	OpLoginRequest Opcode = 0x0001
	OpGuestLogin   Opcode = 0x0002
	OpLoginResult  Opcode = 0x0003

	OpPing Opcode = 0x0011
	OpPong Opcode = 0x0012
	OpEcho Opcode = 0x0013
)

func (o Opcode) String() string {
	switch o {
	case OpLoginRequest:
		return "LOGIN_REQUEST"
	case OpGuestLogin:
		return "GUEST_LOGIN"
	case OpLoginResult:
		return "LOGIN_RESULT"
	case OpPing:
		return "PING"
	case OpPong:
		return "PONG"
	case OpEcho:
		return "ECHO"
	}
	return fmt.Sprintf("0x%04X", uint16(o))
}
