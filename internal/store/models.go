package store

import "time"

type User struct {
	ID                int64
	ExternalSubject   string
	PlaceholderSecret string
	CreatedAt         time.Time
}

type Mindmap struct {
	ID         int64
	UserID     int64
	Name       string
	RootNodeID *int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Node is one element of a mindmap's tree. ParentID is nil only for the
// root node. The store does not verify that a parent belongs to the same
// mindmap; the service only ever creates parentless roots, so a cross-tree
// reference cannot currently be produced through the API.
type Node struct {
	ID        int64
	MindmapID int64
	ParentID  *int64
	Content   string
	PositionX float64
	PositionY float64
	Radius    int
	CreatedAt time.Time
}
