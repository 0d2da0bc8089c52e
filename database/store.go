package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shiftops/kanban/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound is returned when a card, attachment or user does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence layer for boards, cards and their children. Card
// mutations are read-modify-write against the latest committed row: each one
// runs inside a transaction and behind a per-card mutex, so concurrent
// requests for the same card serialize while different cards proceed freely.
type Store struct {
	db        *gorm.DB
	cardLocks sync.Map // card id -> *sync.Mutex
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) lockCard(id int64) func() {
	v, _ := s.cardLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// GetOrCreateBoard resolves the board for a date key, creating it on first
// access. Safe under concurrent first-access races: the unique index makes the
// insert a no-op for the loser, who then reads the winner's row.
func (s *Store) GetOrCreateBoard(dateKey string) (*models.Board, error) {
	var board models.Board
	err := s.db.Where("date_key = ?", dateKey).First(&board).Error
	if err == nil {
		return &board, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load board: %w", err)
	}

	board = models.Board{DateKey: dateKey}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&board)
	if res.Error != nil {
		return nil, fmt.Errorf("create board: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := s.db.Where("date_key = ?", dateKey).First(&board).Error; err != nil {
			return nil, fmt.Errorf("load board after conflict: %w", err)
		}
	}
	return &board, nil
}

// BoardCards lists a board's cards, most recently updated first.
func (s *Store) BoardCards(boardID int64) ([]models.Card, error) {
	cards := []models.Card{}
	if err := s.db.Where("board_id = ?", boardID).Order("updated_at DESC").Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return cards, nil
}

// CreateCard persists a new card together with its create event, atomically.
func (s *Store) CreateCard(card *models.Card, event *models.CardEvent) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(card).Error; err != nil {
			return fmt.Errorf("create card: %w", err)
		}
		event.CardID = card.ID
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	})
}

func (s *Store) GetCard(id int64) (*models.Card, error) {
	var card models.Card
	if err := s.db.First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load card: %w", err)
	}
	return &card, nil
}

// UpdateCard re-reads the card, applies the mutation and commits card plus
// optional history event as one unit. apply receives the latest persisted row,
// never the caller's view; returning an error rolls everything back.
func (s *Store) UpdateCard(id int64, apply func(card *models.Card) (*models.CardEvent, error)) (*models.Card, error) {
	unlock := s.lockCard(id)
	defer unlock()

	var card models.Card
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&card, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load card: %w", err)
		}
		event, err := apply(&card)
		if err != nil {
			return err
		}
		if err := tx.Save(&card).Error; err != nil {
			return fmt.Errorf("save card: %w", err)
		}
		if event != nil {
			event.CardID = card.ID
			if err := tx.Create(event).Error; err != nil {
				return fmt.Errorf("append event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *Store) DeleteCard(id int64) error {
	unlock := s.lockCard(id)
	defer unlock()

	res := s.db.Delete(&models.Card{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete card: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) cardExists(tx *gorm.DB, id int64) error {
	var n int64
	if err := tx.Model(&models.Card{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("check card: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Comments lists a card's comments, oldest first.
func (s *Store) Comments(cardID int64) ([]models.Comment, error) {
	comments := []models.Comment{}
	if err := s.db.Where("card_id = ?", cardID).Order("created_at ASC").Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return comments, nil
}

func (s *Store) AddComment(comment *models.Comment, event *models.CardEvent) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.cardExists(tx, comment.CardID); err != nil {
			return err
		}
		if err := tx.Create(comment).Error; err != nil {
			return fmt.Errorf("create comment: %w", err)
		}
		event.CardID = comment.CardID
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	})
}

// Attachments lists a card's attachments, newest first.
func (s *Store) Attachments(cardID int64) ([]models.Attachment, error) {
	attachments := []models.Attachment{}
	if err := s.db.Where("card_id = ?", cardID).Order("created_at DESC").Find(&attachments).Error; err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}

func (s *Store) AddAttachment(att *models.Attachment, event *models.CardEvent) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.cardExists(tx, att.CardID); err != nil {
			return err
		}
		if err := tx.Create(att).Error; err != nil {
			return fmt.Errorf("create attachment: %w", err)
		}
		event.CardID = att.CardID
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		return nil
	})
}

func (s *Store) GetAttachment(id int64) (*models.Attachment, error) {
	var att models.Attachment
	if err := s.db.First(&att, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load attachment: %w", err)
	}
	return &att, nil
}

func (s *Store) DeleteAttachment(id int64) error {
	res := s.db.Delete(&models.Attachment{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete attachment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CardEvents returns the card's audit trail in append order.
func (s *Store) CardEvents(cardID int64) ([]models.CardEvent, error) {
	events := []models.CardEvent{}
	if err := s.db.Where("card_id = ?", cardID).Order("id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// UpsertUser creates the user or replaces its password hash.
func (s *Store) UpsertUser(email, passHash string) error {
	user := models.User{Email: email, PassHash: passHash}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"pass_hash"}),
	}).Create(&user).Error
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}
