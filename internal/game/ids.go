package game

// Opaque topology identifiers. No arithmetic beyond equality.
type (
	WorldID     uint32
	ChannelID   uint32
	MapID       uint32
	AccountID   int32
	CharacterID int32
)

// RoomID names one room: a map instance inside a channel.
type RoomID struct {
	Instance uint32
	Map      MapID
}
