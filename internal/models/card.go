package models

import "gorm.io/datatypes"

// Status is the column a card currently sits in. Any status may transition to
// any other; the board is operator-driven, not a strict workflow.
type Status string

const (
	StatusAFazer      Status = "A_FAZER"
	StatusEmAndamento Status = "EM_ANDAMENTO"
	StatusBloqueado   Status = "BLOQUEADO"
	StatusConcluido   Status = "CONCLUIDO"
)

func (s Status) Valid() bool {
	switch s {
	case StatusAFazer, StatusEmAndamento, StatusBloqueado, StatusConcluido:
		return true
	}
	return false
}

type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityAlta   Priority = "ALTA"
)

func (p Priority) Valid() bool {
	return p == PriorityNormal || p == PriorityAlta
}

// Card is a work item on a daily board. All instants are epoch milliseconds.
//
// The four clock fields (StartedAt, CompletedAt, WorkStartedAt, WorkAccumMs)
// and ReturnsToAfazer are owned by the kanban package; handlers and the store
// never write them directly.
type Card struct {
	ID       int64    `gorm:"primaryKey" json:"id"`
	BoardID  int64    `gorm:"index;not null" json:"board_id"`
	Title    string   `gorm:"not null" json:"title"`
	Status   Status   `gorm:"not null" json:"status"`
	Assignee string   `json:"assignee"`
	Priority Priority `json:"priority"`
	Notes    string   `json:"notes"`

	UpdatedAt int64  `gorm:"not null;autoUpdateTime:false" json:"updated_at"`
	DueAt     *int64 `json:"due_at"`

	Tags datatypes.JSON `json:"tags"`

	// Lead-time clock: runs from StartedAt until CompletedAt (or now while open).
	StartedAt   int64  `json:"started_at"`
	CompletedAt *int64 `json:"completed_at"`

	// Work clock: running while WorkStartedAt is set, banked into WorkAccumMs.
	WorkStartedAt *int64 `json:"work_started_at"`
	WorkAccumMs   int64  `json:"work_accum_ms"`

	ReturnsToAfazer int64 `json:"returns_to_afazer"`
}

// Board groups the cards of a single operating day. Exactly one board exists
// per date key; it is created lazily on first access.
type Board struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	DateKey string `gorm:"uniqueIndex;not null" json:"date_key"`
}

// Comment is immutable once created.
type Comment struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	CardID    int64  `gorm:"index;not null" json:"card_id"`
	Author    string `json:"author"`
	Text      string `gorm:"not null" json:"text"`
	CreatedAt int64  `gorm:"autoCreateTime:false" json:"created_at"`
}

// Attachment references a file stored under the upload directory. Filename is
// the stored (server-generated) name, OriginalName what the client uploaded.
type Attachment struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	CardID       int64  `gorm:"index;not null" json:"card_id"`
	Filename     string `gorm:"not null" json:"filename"`
	OriginalName string `json:"original_name"`
	Mime         string `json:"mime"`
	Size         int64  `json:"size"`
	CreatedAt    int64  `gorm:"autoCreateTime:false" json:"created_at"`
}

// CardEvent is the append-only audit trail; the two clocks are reconstructible
// from status_change events alone.
type CardEvent struct {
	ID        int64          `gorm:"primaryKey" json:"id"`
	CardID    int64          `gorm:"index;not null" json:"card_id"`
	EventType string         `gorm:"not null" json:"event_type"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt int64          `gorm:"autoCreateTime:false" json:"created_at"`
}

const (
	EventCreate       = "create"
	EventStatusChange = "status_change"
	EventComment      = "comment"
	EventAttachment   = "attachment"
)

// User holds login credentials for the bearer-token flow.
type User struct {
	ID       int64  `gorm:"primaryKey" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	PassHash string `gorm:"not null" json:"-"`
}
