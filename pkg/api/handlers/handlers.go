package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cbodonnell/hotdice/pkg/api/middleware"
	"github.com/cbodonnell/hotdice/pkg/game"
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/cbodonnell/hotdice/pkg/matchmaking"
	"github.com/cbodonnell/hotdice/pkg/repositories"
	"github.com/cbodonnell/hotdice/pkg/repositories/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type CreateMatchRequest struct {
	GameMode   string `json:"gameMode"`
	MatchType  string `json:"matchType"`
	OpponentID string `json:"opponentId,omitempty"`
	VersusBot  bool   `json:"versusBot,omitempty"`
}

type CreateMatchResponse struct {
	SessionID  string `json:"sessionId"`
	Optimistic bool   `json:"optimistic"`
	Existing   bool   `json:"existing"`
}

type TurnDeciderRequest struct {
	Choice string `json:"choice"`
	Nonce  string `json:"nonce"`
}

type TurnActionRequest struct {
	Nonce string `json:"nonce"`
}

func HandleCreateMatch(matchService *game.MatchService, repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		var request CreateMatchRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		switch request.GameMode {
		case gametypes.GameModeClassic, gametypes.GameModeSprint:
		default:
			http.Error(w, "Invalid game mode", http.StatusBadRequest)
			return
		}
		matchType := gametypes.MatchType(request.MatchType)
		if matchType == "" {
			matchType = gametypes.MatchTypeCasual
		}
		switch matchType {
		case gametypes.MatchTypeCasual, gametypes.MatchTypeRanked:
		default:
			http.Error(w, "Invalid match type", http.StatusBadRequest)
			return
		}

		opponent, err := resolveOpponent(r, repository, user, &request)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Opponent not found", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		handle, err := matchService.CreateSession(r.Context(), matchmaking.CreateSessionParams{
			GameMode:  request.GameMode,
			MatchType: matchType,
			Host: gametypes.Profile{
				PlayerID:    user.ID,
				DisplayName: user.DisplayName,
			},
			Opponent: opponent,
		})
		if err != nil {
			if matchmaking.IsAlreadyInMatch(err) {
				http.Error(w, "Opponent is already in a match", http.StatusConflict)
				return
			}
			log.Error("failed to create match: %v", err)
			http.Error(w, "Failed to create match", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		if err := json.NewEncoder(w).Encode(&CreateMatchResponse{
			SessionID:  handle.SessionID,
			Optimistic: handle.IsOptimistic,
			Existing:   handle.Existing,
		}); err != nil {
			log.Error("failed to encode match response: %v", err)
		}
	}
}

func HandleCurrentMatch(matchService *game.MatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}

		status, err := matchService.CheckUserInMatch(r.Context(), user.ID)
		if err != nil {
			log.Error("failed to check user match status: %v", err)
			http.Error(w, "Failed to check match status", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Error("failed to encode match status: %v", err)
		}
	}
}

func HandleTurnDeciderChoice(matchService *game.MatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		sessionID := mux.Vars(r)["sessionID"]

		var request TurnDeciderRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		err := matchService.SubmitTurnDeciderChoice(r.Context(), sessionID, user.ID, request.Choice, request.Nonce)
		writeActionResult(w, err)
	}
}

func HandleRollDice(matchService *game.MatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		sessionID := mux.Vars(r)["sessionID"]

		var request TurnActionRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		err := matchService.RollDice(r.Context(), sessionID, user.ID, request.Nonce)
		writeActionResult(w, err)
	}
}

func HandleBankScore(matchService *game.MatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		sessionID := mux.Vars(r)["sessionID"]

		var request TurnActionRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		err := matchService.BankScore(r.Context(), sessionID, user.ID, request.Nonce)
		writeActionResult(w, err)
	}
}

func HandleLeaveMatch(matchService *game.MatchService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := r.Context().Value(middleware.UserContextKey).(*models.User)
		if !ok {
			log.Error("failed to get user from context")
			http.Error(w, "Failed to get user from context", http.StatusInternalServerError)
			return
		}
		sessionID := mux.Vars(r)["sessionID"]

		err := matchService.LeaveSession(r.Context(), sessionID, user.ID)
		writeActionResult(w, err)
	}
}

func writeActionResult(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	switch {
	case game.IsInvalidTurnAction(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case game.IsWriteConflict(err):
		http.Error(w, "Session is busy, retry the action", http.StatusConflict)
	case repositories.IsNotFound(err):
		http.Error(w, "Session not found", http.StatusNotFound)
	default:
		log.Error("failed to apply turn action: %v", err)
		http.Error(w, "Failed to apply turn action", http.StatusInternalServerError)
	}
}

func resolveOpponent(r *http.Request, repository repositories.Repository, user *models.User, request *CreateMatchRequest) (gametypes.Profile, error) {
	if request.VersusBot {
		return gametypes.Profile{
			PlayerID:    fmt.Sprintf("bot:%s", uuid.New().String()),
			DisplayName: "Dicey",
			IsBot:       true,
		}, nil
	}
	if request.OpponentID == "" {
		return gametypes.Profile{}, fmt.Errorf("opponentId is required")
	}
	if request.OpponentID == user.ID {
		return gametypes.Profile{}, fmt.Errorf("cannot play against yourself")
	}
	opponent, err := repository.GetUser(r.Context(), request.OpponentID)
	if err != nil {
		return gametypes.Profile{}, err
	}
	return gametypes.Profile{
		PlayerID:    opponent.ID,
		DisplayName: opponent.DisplayName,
	}, nil
}
