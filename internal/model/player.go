package model

// GameLocation identifies which map the player currently occupies. Each
// location is backed by its own independent room on the server.
type GameLocation int

const (
	LocationVillage GameLocation = iota + 1
	LocationLibrary
	LocationHouse1
	LocationHouse2
	LocationShop
	LocationBlacksmith
)

func (l GameLocation) String() string {
	switch l {
	case LocationVillage:
		return "village"
	case LocationLibrary:
		return "library"
	case LocationHouse1:
		return "house_1"
	case LocationHouse2:
		return "house_2"
	case LocationShop:
		return "shop"
	case LocationBlacksmith:
		return "blacksmith"
	default:
		return "unknown"
	}
}

// FacingDirection is the horizontal sprite orientation.
type FacingDirection string

const (
	FacingLeft  FacingDirection = "left"
	FacingRight FacingDirection = "right"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerState is the canonical per-player state held by a room and echoed in
// broadcasts. Positions are in fixed canvas coordinates, never screen pixels.
type PlayerState struct {
	PlayerID        string          `json:"playerId"`
	PlayerName      string          `json:"playerName"`
	Position        Position        `json:"position"`
	CurrentFrame    int             `json:"currentFrame"`
	CurrentLocation GameLocation    `json:"currentLocation"`
	IsMoving        bool            `json:"isMoving"`
	SpriteVariant   int             `json:"spriteVariant"`
	FacingDirection FacingDirection `json:"facingDirection"`
	LastUpdate      int64           `json:"lastUpdate"` // unix milliseconds, server-assigned
	ConnectionID    string          `json:"connectionId"`
}
