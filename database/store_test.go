package database

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shiftops/kanban/internal/kanban"
	"github.com/shiftops/kanban/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db := Init(dsn)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewStore(db)
}

func createTestCard(t *testing.T, s *Store, boardID int64, status models.Status, now int64) *models.Card {
	t.Helper()
	card := &models.Card{
		BoardID:   boardID,
		Title:     "verificar bomba 3",
		Status:    status,
		Priority:  models.PriorityNormal,
		UpdatedAt: now,
		Tags:      models.NormalizeTags(nil),
	}
	kanban.InitClocks(card, now)
	payload, _ := json.Marshal(map[string]any{"status": status})
	event := &models.CardEvent{EventType: models.EventCreate, Payload: payload, CreatedAt: now}
	require.NoError(t, s.CreateCard(card, event))
	return card
}

func TestGetOrCreateBoard_Idempotent(t *testing.T) {
	s := newTestStore(t)

	a, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)
	b, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)

	other, err := s.GetOrCreateBoard("2026-08-30")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, other.ID)
}

func TestGetOrCreateBoard_ConcurrentFirstAccess(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			board, err := s.GetOrCreateBoard("2026-08-29")
			if assert.NoError(t, err) {
				ids[i] = board.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestBoardCards_OrderedByMostRecentUpdate(t *testing.T) {
	s := newTestStore(t)
	board, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)

	old := createTestCard(t, s, board.ID, models.StatusAFazer, 1000)
	fresh := createTestCard(t, s, board.ID, models.StatusAFazer, 2000)

	cards, err := s.BoardCards(board.ID)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, fresh.ID, cards[0].ID)
	assert.Equal(t, old.ID, cards[1].ID)
}

func TestCreateCard_AppendsCreateEvent(t *testing.T) {
	s := newTestStore(t)
	board, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)

	card := createTestCard(t, s, board.ID, models.StatusAFazer, 1000)

	events, err := s.CardEvents(card.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventCreate, events[0].EventType)
	assert.EqualValues(t, 1000, events[0].CreatedAt)
}

func TestUpdateCard_AppliesAgainstLatestRow(t *testing.T) {
	s := newTestStore(t)
	board, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)
	card := createTestCard(t, s, board.ID, models.StatusAFazer, 0)

	transition := func(to models.Status, now int64) {
		_, err := s.UpdateCard(card.ID, func(c *models.Card) (*models.CardEvent, error) {
			change, changed := kanban.ApplyTransition(c, to, now)
			c.UpdatedAt = now
			if !changed {
				return nil, nil
			}
			payload, _ := json.Marshal(change)
			return &models.CardEvent{EventType: models.EventStatusChange, Payload: payload, CreatedAt: now}, nil
		})
		require.NoError(t, err)
	}

	transition(models.StatusEmAndamento, 1000)
	transition(models.StatusConcluido, 4000)

	got, err := s.GetCard(card.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3000, got.WorkAccumMs)
	require.NotNil(t, got.CompletedAt)
	assert.EqualValues(t, 4000, *got.CompletedAt)

	events, err := s.CardEvents(card.ID)
	require.NoError(t, err)
	assert.Len(t, events, 3) // create + two status changes
}

func TestUpdateCard_ErrorRollsBackEverything(t *testing.T) {
	s := newTestStore(t)
	board, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)
	card := createTestCard(t, s, board.ID, models.StatusAFazer, 0)

	boom := fmt.Errorf("apply failed")
	_, err = s.UpdateCard(card.ID, func(c *models.Card) (*models.CardEvent, error) {
		c.Title = "should not persist"
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetCard(card.ID)
	require.NoError(t, err)
	assert.Equal(t, "verificar bomba 3", got.Title)

	events, err := s.CardEvents(card.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestUpdateCard_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpdateCard(12345, func(c *models.Card) (*models.CardEvent, error) {
		t.Fatal("apply must not run for a missing card")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

// Two concurrent transitions against the same card must not lose an update:
// the second observes the first's committed state.
func TestUpdateCard_ConcurrentTransitionsSerialize(t *testing.T) {
	s := newTestStore(t)
	board, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)
	card := createTestCard(t, s, board.ID, models.StatusConcluido, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpdateCard(card.ID, func(c *models.Card) (*models.CardEvent, error) {
				change, changed := kanban.ApplyTransition(c, models.StatusAFazer, 1000)
				if !changed {
					// Another goroutine already moved it; bounce it out and back.
					kanban.ApplyTransition(c, models.StatusBloqueado, 1000)
					change, _ = kanban.ApplyTransition(c, models.StatusAFazer, 1000)
				}
				payload, _ := json.Marshal(change)
				return &models.CardEvent{EventType: models.EventStatusChange, Payload: payload, CreatedAt: 1000}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetCard(card.ID)
	require.NoError(t, err)
	// Every goroutine lands exactly one transition into A_FAZER.
	assert.EqualValues(t, 10, got.ReturnsToAfazer)
}

func TestDeleteCard(t *testing.T) {
	s := newTestStore(t)
	board, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)
	card := createTestCard(t, s, board.ID, models.StatusAFazer, 0)

	require.NoError(t, s.DeleteCard(card.ID))

	_, err = s.GetCard(card.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, s.DeleteCard(card.ID), ErrNotFound)
}

func TestComments_AppendAndListOldestFirst(t *testing.T) {
	s := newTestStore(t)
	board, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)
	card := createTestCard(t, s, board.ID, models.StatusAFazer, 0)

	for i, text := range []string{"primeiro", "segundo"} {
		payload, _ := json.Marshal(map[string]string{"author": "operador"})
		err := s.AddComment(
			&models.Comment{CardID: card.ID, Author: "operador", Text: text, CreatedAt: int64(i + 1)},
			&models.CardEvent{EventType: models.EventComment, Payload: payload, CreatedAt: int64(i + 1)},
		)
		require.NoError(t, err)
	}

	comments, err := s.Comments(card.ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "primeiro", comments[0].Text)

	err = s.AddComment(
		&models.Comment{CardID: 99999, Text: "orfao", CreatedAt: 3},
		&models.CardEvent{EventType: models.EventComment, CreatedAt: 3},
	)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachments_AppendListDelete(t *testing.T) {
	s := newTestStore(t)
	board, err := s.GetOrCreateBoard("2026-08-29")
	require.NoError(t, err)
	card := createTestCard(t, s, board.ID, models.StatusAFazer, 0)

	payload, _ := json.Marshal(map[string]string{"original_name": "foto.png"})
	att := &models.Attachment{
		CardID:       card.ID,
		Filename:     uuid.NewString() + "_foto.png",
		OriginalName: "foto.png",
		Mime:         "image/png",
		Size:         1234,
		CreatedAt:    1000,
	}
	require.NoError(t, s.AddAttachment(att, &models.CardEvent{EventType: models.EventAttachment, Payload: payload, CreatedAt: 1000}))

	list, err := s.Attachments(card.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "foto.png", list[0].OriginalName)

	got, err := s.GetAttachment(att.ID)
	require.NoError(t, err)
	assert.Equal(t, att.Filename, got.Filename)

	require.NoError(t, s.DeleteAttachment(att.ID))
	_, err = s.GetAttachment(att.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteAttachment(att.ID), ErrNotFound)
}

func TestUsers_UpsertAndLookup(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertUser("op@example.com", "hash-1"))
	require.NoError(t, s.UpsertUser("op@example.com", "hash-2"))

	user, err := s.GetUserByEmail("op@example.com")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", user.PassHash)

	_, err = s.GetUserByEmail("missing@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}
