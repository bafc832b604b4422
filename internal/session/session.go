// Package session keeps the per-actor conversational slots: one pending
// multi-step action, the entered room and an admin's open inbox thread.
package session

import (
	"context"
)

type ActionKind string

const (
	ActionCreateRoom           ActionKind = "create_room"
	ActionGrantAccess          ActionKind = "grant_access"
	ActionAddAccess            ActionKind = "add_access"
	ActionRemoveAccess         ActionKind = "remove_access"
	ActionDeleteRoom           ActionKind = "delete_room"
	ActionEditRoomName         ActionKind = "edit_room_name"
	ActionSetRole              ActionKind = "set_role"
	ActionCreateRoomFromThread ActionKind = "create_room_from_thread"
	ActionAddReview            ActionKind = "add_review"
	ActionEditNotes            ActionKind = "edit_notes"
)

// PendingAction carries what a flow needs to resume on the actor's next input.
type PendingAction struct {
	Kind     ActionKind `json:"kind"`
	RoomID   int64      `json:"roomId,omitempty"`
	UserID   int64      `json:"userId,omitempty"`
	Role     string     `json:"role,omitempty"`
	ReviewID int64      `json:"reviewId,omitempty"`
}

type State struct {
	Pending      *PendingAction `json:"pending,omitempty"`
	ActiveRoom   int64          `json:"activeRoom,omitempty"`
	ActiveThread int64          `json:"activeThread,omitempty"`
}

func (s State) Empty() bool {
	return s.Pending == nil && s.ActiveRoom == 0 && s.ActiveThread == 0
}

type CancelResult int

const (
	CancelNothing CancelResult = iota
	CancelPending
	CancelRoom
)

// Store serializes every read-modify-write per actor.
type Store interface {
	Get(ctx context.Context, actor int64) (State, error)
	// Update runs fn on the actor's state under the actor's exclusive section.
	// An error from fn discards the change.
	Update(ctx context.Context, actor int64, fn func(*State) error) (State, error)
	SetPending(ctx context.Context, actor int64, action PendingAction) error
	ClearPending(ctx context.Context, actor int64) error
	SetActiveRoom(ctx context.Context, actor, roomID int64) error
	ClearActiveRoom(ctx context.Context, actor int64) error
	SetActiveThread(ctx context.Context, actor, threadID int64) error
	ClearActiveThread(ctx context.Context, actor int64) error
	Cancel(ctx context.Context, actor int64) (CancelResult, error)
	ActorsInRoom(ctx context.Context, roomID int64) ([]int64, error)
	// ClearRoom drops every active-room pointer at roomID and returns the
	// actors that were inside.
	ClearRoom(ctx context.Context, roomID int64) ([]int64, error)
}

type updateFunc func(ctx context.Context, actor int64, fn func(*State) error) (State, error)

// slots derives the single-field operations from an Update primitive.
type slots struct {
	update updateFunc
}

func (s slots) SetPending(ctx context.Context, actor int64, action PendingAction) error {
	_, err := s.update(ctx, actor, func(st *State) error {
		a := action
		st.Pending = &a
		return nil
	})
	return err
}

func (s slots) ClearPending(ctx context.Context, actor int64) error {
	_, err := s.update(ctx, actor, func(st *State) error {
		st.Pending = nil
		return nil
	})
	return err
}

func (s slots) SetActiveRoom(ctx context.Context, actor, roomID int64) error {
	_, err := s.update(ctx, actor, func(st *State) error {
		st.ActiveRoom = roomID
		st.ActiveThread = 0
		return nil
	})
	return err
}

func (s slots) ClearActiveRoom(ctx context.Context, actor int64) error {
	_, err := s.update(ctx, actor, func(st *State) error {
		st.ActiveRoom = 0
		return nil
	})
	return err
}

func (s slots) SetActiveThread(ctx context.Context, actor, threadID int64) error {
	_, err := s.update(ctx, actor, func(st *State) error {
		st.ActiveThread = threadID
		return nil
	})
	return err
}

func (s slots) ClearActiveThread(ctx context.Context, actor int64) error {
	_, err := s.update(ctx, actor, func(st *State) error {
		st.ActiveThread = 0
		return nil
	})
	return err
}

func (s slots) Cancel(ctx context.Context, actor int64) (CancelResult, error) {
	result := CancelNothing
	_, err := s.update(ctx, actor, func(st *State) error {
		switch {
		case st.Pending != nil:
			st.Pending = nil
			result = CancelPending
		case st.ActiveRoom != 0:
			st.ActiveRoom = 0
			result = CancelRoom
		default:
			result = CancelNothing
		}
		return nil
	})
	if err != nil {
		return CancelNothing, err
	}
	return result, nil
}

func clearRoom(ctx context.Context, update updateFunc, actors []int64, roomID int64) ([]int64, error) {
	cleared := make([]int64, 0, len(actors))
	for _, actor := range actors {
		was := false
		_, err := update(ctx, actor, func(st *State) error {
			was = st.ActiveRoom == roomID
			if was {
				st.ActiveRoom = 0
			}
			return nil
		})
		if err != nil {
			return cleared, err
		}
		if was {
			cleared = append(cleared, actor)
		}
	}
	return cleared, nil
}
