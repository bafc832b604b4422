package endpoints

import (
	"fmt"
	"net/http"

	"github.com/ThomasGodWeb/WorkBot/internal/api/middleware"
	"github.com/ThomasGodWeb/WorkBot/internal/dto"
	"github.com/ThomasGodWeb/WorkBot/internal/notify"
	"github.com/ThomasGodWeb/WorkBot/internal/service/inbox"
	"github.com/ThomasGodWeb/WorkBot/internal/service/lifecycle"
	"github.com/ThomasGodWeb/WorkBot/internal/service/membership"
	"github.com/ThomasGodWeb/WorkBot/internal/service/relay"
)

type ConsoleEndpoints interface {
	Session(http.ResponseWriter, *http.Request) error
	Rooms(http.ResponseWriter, *http.Request) error
	Room(http.ResponseWriter, *http.Request) error
	History(http.ResponseWriter, *http.Request) error
	HistoryEntry(http.ResponseWriter, *http.Request) error
	Reviews(http.ResponseWriter, *http.Request) error
	Threads(http.ResponseWriter, *http.Request) error
}

type ConsoleServices struct {
	Members   *membership.Service
	Lifecycle *lifecycle.Service
	Relay     *relay.Engine
	Inbox     *inbox.Service
}

type ConsolePaths struct {
	RoomPrefix    string
	HistoryPrefix string
}

type consoleEndpoints struct {
	services ConsoleServices
	paths    ConsolePaths
}

func NewConsoleEndpoints(services ConsoleServices, paths ConsolePaths) ConsoleEndpoints {
	return &consoleEndpoints{services: services, paths: paths}
}

func operator(r *http.Request) (int64, error) {
	id, ok := middleware.OperatorID(r.Context())
	if !ok {
		return 0, &HTTPError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized", ErrorLog: fmt.Errorf("operator missing from context")}
	}
	return id, nil
}

func (h *consoleEndpoints) Session(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleSession,
	})
}

func (h *consoleEndpoints) Rooms(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListRooms,
	})
}

// Room serves /rooms/{id}, /rooms/{id}/close and /rooms/{id}/archive.
func (h *consoleEndpoints) Room(w http.ResponseWriter, r *http.Request) error {
	segments, err := pathSegments(r.URL.Path, h.paths.RoomPrefix)
	if err != nil {
		return err
	}
	if len(segments) == 0 || len(segments) > 2 {
		return &HTTPError{StatusCode: http.StatusNotFound, Message: "Not found", ErrorLog: fmt.Errorf("room path %s", r.URL.Path)}
	}
	roomID, err := parseID(segments[0], "room id")
	if err != nil {
		return err
	}

	if len(segments) == 1 {
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodGet: func(w http.ResponseWriter, r *http.Request) error { return h.handleRoomDetail(w, r, roomID) },
		})
	}

	switch segments[1] {
	case "close":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error { return h.handleClose(w, r, roomID, false) },
		})
	case "archive":
		return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
			http.MethodPost: func(w http.ResponseWriter, r *http.Request) error { return h.handleClose(w, r, roomID, true) },
		})
	}
	return &HTTPError{StatusCode: http.StatusNotFound, Message: "Not found", ErrorLog: fmt.Errorf("room action %q", segments[1])}
}

func (h *consoleEndpoints) History(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListHistory,
	})
}

// HistoryEntry serves DELETE /history/{id}, the permanent purge.
func (h *consoleEndpoints) HistoryEntry(w http.ResponseWriter, r *http.Request) error {
	segments, err := pathSegments(r.URL.Path, h.paths.HistoryPrefix)
	if err != nil {
		return err
	}
	if len(segments) != 1 {
		return &HTTPError{StatusCode: http.StatusNotFound, Message: "Not found", ErrorLog: fmt.Errorf("history path %s", r.URL.Path)}
	}
	historyID, err := parseID(segments[0], "history id")
	if err != nil {
		return err
	}
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodDelete: func(w http.ResponseWriter, r *http.Request) error { return h.handlePurge(w, r, historyID) },
	})
}

func (h *consoleEndpoints) Reviews(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListReviews,
	})
}

func (h *consoleEndpoints) Threads(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet: h.handleListThreads,
	})
}

func (h *consoleEndpoints) handleSession(w http.ResponseWriter, r *http.Request) error {
	actor, err := operator(r)
	if err != nil {
		return err
	}
	role, err := h.services.Members.Role(r.Context(), actor)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, dto.SessionResponse{UserID: actor, Role: string(role)})
}

func (h *consoleEndpoints) handleListRooms(w http.ResponseWriter, r *http.Request) error {
	actor, err := operator(r)
	if err != nil {
		return err
	}
	rooms, err := h.services.Members.AllRooms(r.Context(), actor)
	if err != nil {
		return err
	}

	resp := dto.ListRoomsResponse{Rooms: make([]dto.RoomResponse, len(rooms))}
	for i, room := range rooms {
		resp.Rooms[i] = toRoomResponse(room)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *consoleEndpoints) handleRoomDetail(w http.ResponseWriter, r *http.Request, roomID int64) error {
	actor, err := operator(r)
	if err != nil {
		return err
	}
	ctx := r.Context()

	messages, err := h.services.Relay.RoomMessages(ctx, actor, roomID, queryLimit(r, relay.HistoryLimit))
	if err != nil {
		return err
	}
	room, err := h.services.Members.Room(ctx, roomID)
	if err != nil {
		return err
	}
	members, err := h.services.Members.Members(ctx, roomID)
	if err != nil {
		return err
	}

	resp := dto.RoomDetailResponse{
		Room:     toRoomResponse(room),
		Members:  make([]dto.MemberResponse, len(members)),
		Messages: make([]dto.MessageResponse, len(messages)),
	}
	for i, m := range members {
		resp.Members[i] = toMemberResponse(m)
	}
	for i, m := range messages {
		resp.Messages[i] = toMessageResponse(m)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *consoleEndpoints) handleClose(w http.ResponseWriter, r *http.Request, roomID int64, archive bool) error {
	actor, err := operator(r)
	if err != nil {
		return err
	}

	var closure lifecycle.Closure
	if archive {
		closure, err = h.services.Lifecycle.Archive(r.Context(), actor, roomID)
	} else {
		closure, err = h.services.Lifecycle.CloseByAdmin(r.Context(), actor, roomID)
	}
	if err != nil {
		return err
	}

	failed := len(notify.Failed(closure.Results))
	return WriteJSON(w, http.StatusOK, dto.CloseRoomResponse{
		Room:      toRoomResponse(closure.Room),
		HistoryID: closure.Entry.HistoryID,
		Notified:  len(closure.Results) - failed,
		Failed:    failed,
	})
}

func (h *consoleEndpoints) handleListHistory(w http.ResponseWriter, r *http.Request) error {
	actor, err := operator(r)
	if err != nil {
		return err
	}
	entries, err := h.services.Lifecycle.History(r.Context(), actor)
	if err != nil {
		return err
	}

	resp := dto.ListHistoryResponse{History: make([]dto.HistoryResponse, len(entries))}
	for i, entry := range entries {
		resp.History[i] = toHistoryResponse(entry)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *consoleEndpoints) handlePurge(w http.ResponseWriter, r *http.Request, historyID int64) error {
	actor, err := operator(r)
	if err != nil {
		return err
	}
	entry, err := h.services.Lifecycle.Purge(r.Context(), actor, historyID)
	if err != nil {
		return err
	}
	return WriteJSON(w, http.StatusOK, toHistoryResponse(entry))
}

func (h *consoleEndpoints) handleListReviews(w http.ResponseWriter, r *http.Request) error {
	actor, err := operator(r)
	if err != nil {
		return err
	}
	reviews, err := h.services.Lifecycle.Reviews(r.Context(), actor)
	if err != nil {
		return err
	}

	resp := dto.ListReviewsResponse{Reviews: make([]dto.ReviewResponse, len(reviews))}
	for i, review := range reviews {
		resp.Reviews[i] = toReviewResponse(review)
	}
	return WriteJSON(w, http.StatusOK, resp)
}

func (h *consoleEndpoints) handleListThreads(w http.ResponseWriter, r *http.Request) error {
	actor, err := operator(r)
	if err != nil {
		return err
	}
	threads, err := h.services.Inbox.Threads(r.Context(), actor)
	if err != nil {
		return err
	}

	resp := dto.ListThreadsResponse{Threads: make([]dto.ThreadResponse, len(threads))}
	for i, view := range threads {
		resp.Threads[i] = toThreadResponse(view)
	}
	return WriteJSON(w, http.StatusOK, resp)
}
