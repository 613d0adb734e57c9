package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"bisca/internal/app"
	"bisca/internal/config"
	"bisca/internal/domain"
	"bisca/internal/ports"

	"github.com/heroiclabs/nakama-common/runtime"
)

// RpcHandlers bundles the services the RPC endpoints dispatch into.
type RpcHandlers struct {
	games  *app.Service
	series *app.SeriesService
	guests *app.GuestTokenService
	lobby  *NakamaGameStore
	notify *eventNotifier
}

// NewRpcHandlers creates the RPC handler set.
func NewRpcHandlers(games *app.Service, series *app.SeriesService, guests *app.GuestTokenService, lobby *NakamaGameStore, notifications notificationAPI) *RpcHandlers {
	return &RpcHandlers{games: games, series: series, guests: guests, lobby: lobby, notify: newEventNotifier(notifications)}
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer, h *RpcHandlers) error {
	rpcs := map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
		RpcIDCreateGame:   h.rpcCreateGame,
		RpcIDJoinGame:     h.rpcJoinGame,
		RpcIDMakeMove:     h.rpcMakeMove,
		RpcIDGetState:     h.rpcGetState,
		RpcIDListGames:    h.rpcListOpenGames,
		RpcIDCreateSeries: h.rpcCreateSeries,
		RpcIDJoinSeries:   h.rpcJoinSeries,
		RpcIDGetSeries:    h.rpcGetSeries,
	}
	for id, fn := range rpcs {
		if err := initializer.RegisterRpc(id, fn); err != nil {
			return err
		}
	}
	return nil
}

type createGameRequest struct {
	Type       int    `json:"type"`
	VsBot      bool   `json:"vs_bot"`
	Tier       string `json:"tier"`
	OpponentID string `json:"opponent_id"`
}

type gameResponse struct {
	Game       *domain.Game `json:"game"`
	GuestToken string       `json:"guest_token,omitempty"`
}

func (h *RpcHandlers) rpcCreateGame(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req createGameRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("invalid payload", 3)
	}

	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)

	params := app.CreateGameParams{Type: req.Type}
	guestToken := ""

	switch {
	case userID != "":
		params.Creator = domain.Human(userID)
	case req.VsBot:
		// Anonymous visitors may only play the bot for free.
		params.Creator = domain.Anonymous(app.NewGuestID())
	default:
		return "", runtime.NewError("authentication required for wagered games", 16)
	}

	if !req.VsBot {
		params.Stake = config.GetStake(req.Tier)
		var opponent domain.PlayerRef
		if req.OpponentID != "" {
			opponent = domain.Human(req.OpponentID)
		}
		params.Opponent = &opponent
	}

	game, events, err := h.games.CreateGame(ctx, params)
	if err != nil {
		logger.Error("rpcCreateGame [User:%s]: %v", userID, err)
		return "", toRuntimeError(err)
	}

	if params.Creator.Kind == domain.PlayerAnonymous {
		guestToken, err = h.guests.Issue(params.Creator.ID, game.ID)
		if err != nil {
			logger.Error("rpcCreateGame: failed to issue guest token: %v", err)
			return "", runtime.NewError("internal error", 13)
		}
	}

	// A designated challenge opponent learns about the invitation here.
	h.notify.dispatch(ctx, logger, game, params.Creator, events)

	return marshalResponse(gameResponse{Game: game, GuestToken: guestToken})
}

type joinGameRequest struct {
	GameID string `json:"game_id"`
}

func (h *RpcHandlers) rpcJoinGame(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req joinGameRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.GameID == "" {
		return "", runtime.NewError("invalid payload", 3)
	}

	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("authentication required", 16)
	}

	joiner := domain.Human(userID)
	game, events, err := h.games.JoinGame(ctx, req.GameID, joiner)
	if err != nil {
		logger.Error("rpcJoinGame [User:%s Game:%s]: %v", userID, req.GameID, err)
		return "", toRuntimeError(err)
	}

	h.notify.dispatch(ctx, logger, game, joiner, events)
	return marshalResponse(gameResponse{Game: game})
}

type makeMoveRequest struct {
	GameID     string `json:"game_id"`
	Action     string `json:"action"`
	CardID     string `json:"card_id"`
	GuestToken string `json:"guest_token"`
}

func (h *RpcHandlers) rpcMakeMove(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req makeMoveRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.GameID == "" {
		return "", runtime.NewError("invalid payload", 3)
	}

	actor, err := h.resolveActor(ctx, req.GuestToken, req.GameID)
	if err != nil {
		return "", err
	}

	mv := app.Move{Action: app.MoveAction(req.Action), CardID: req.CardID}
	game, events, err := h.games.MakeMove(ctx, req.GameID, actor, mv)
	if err != nil {
		logger.Debug("rpcMakeMove [Actor:%s Game:%s Action:%s]: %v", actor, req.GameID, req.Action, err)
		return "", toRuntimeError(err)
	}

	h.notify.dispatch(ctx, logger, game, actor, events)
	return marshalResponse(gameResponse{Game: game})
}

type getStateRequest struct {
	GameID     string `json:"game_id"`
	GuestToken string `json:"guest_token"`
}

func (h *RpcHandlers) rpcGetState(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req getStateRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.GameID == "" {
		return "", runtime.NewError("invalid payload", 3)
	}

	actor, err := h.resolveActor(ctx, req.GuestToken, req.GameID)
	if err != nil {
		return "", err
	}

	game, err := h.games.GetState(ctx, req.GameID, actor)
	if err != nil {
		return "", toRuntimeError(err)
	}
	return marshalResponse(gameResponse{Game: game})
}

type listGamesRequest struct {
	Limit int `json:"limit"`
}

type listGamesResponse struct {
	Games []*domain.Game `json:"games"`
}

func (h *RpcHandlers) rpcListOpenGames(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req listGamesRequest
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return "", runtime.NewError("invalid payload", 3)
		}
	}
	if req.Limit <= 0 || req.Limit > 100 {
		req.Limit = 50
	}

	games, err := h.lobby.ListOpenGames(ctx, req.Limit)
	if err != nil {
		logger.Error("rpcListOpenGames: %v", err)
		return "", runtime.NewError("internal error", 13)
	}
	return marshalResponse(listGamesResponse{Games: games})
}

type createSeriesRequest struct {
	Type int    `json:"type"`
	Tier string `json:"tier"`
}

type seriesResponse struct {
	Series *domain.Series `json:"series"`
	Game   *domain.Game   `json:"game,omitempty"`
}

func (h *RpcHandlers) rpcCreateSeries(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req createSeriesRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", runtime.NewError("invalid payload", 3)
	}

	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("authentication required", 16)
	}

	sr, err := h.series.CreateSeries(ctx, domain.Human(userID), req.Type, config.GetStake(req.Tier))
	if err != nil {
		logger.Error("rpcCreateSeries [User:%s]: %v", userID, err)
		return "", toRuntimeError(err)
	}
	return marshalResponse(seriesResponse{Series: sr})
}

type joinSeriesRequest struct {
	SeriesID string `json:"series_id"`
}

func (h *RpcHandlers) rpcJoinSeries(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req joinSeriesRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.SeriesID == "" {
		return "", runtime.NewError("invalid payload", 3)
	}

	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("authentication required", 16)
	}

	sr, game, err := h.series.JoinSeries(ctx, req.SeriesID, domain.Human(userID))
	if err != nil {
		logger.Error("rpcJoinSeries [User:%s Series:%s]: %v", userID, req.SeriesID, err)
		return "", toRuntimeError(err)
	}
	return marshalResponse(seriesResponse{Series: sr, Game: game})
}

type getSeriesRequest struct {
	SeriesID string `json:"series_id"`
}

func (h *RpcHandlers) rpcGetSeries(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req getSeriesRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil || req.SeriesID == "" {
		return "", runtime.NewError("invalid payload", 3)
	}

	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("authentication required", 16)
	}

	sr, err := h.series.GetSeries(ctx, req.SeriesID, domain.Human(userID))
	if err != nil {
		return "", toRuntimeError(err)
	}
	return marshalResponse(seriesResponse{Series: sr})
}

// resolveActor identifies the caller: a registered session user, or an
// anonymous guest presenting a token scoped to the requested game.
func (h *RpcHandlers) resolveActor(ctx context.Context, guestToken, gameID string) (domain.PlayerRef, error) {
	if userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string); userID != "" {
		return domain.Human(userID), nil
	}
	if guestToken == "" {
		return domain.PlayerRef{}, runtime.NewError("authentication required", 16)
	}

	guest, tokenGameID, err := h.guests.Verify(guestToken)
	if err != nil {
		return domain.PlayerRef{}, runtime.NewError("invalid guest token", 16)
	}
	if tokenGameID != gameID {
		return domain.PlayerRef{}, runtime.NewError("guest token is for another game", 7)
	}
	return guest, nil
}

func marshalResponse(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", runtime.NewError("internal error", 13)
	}
	return string(b), nil
}

// toRuntimeError maps engine errors onto Nakama's gRPC-style codes so
// clients can react to each rejection by code alone.
func toRuntimeError(err error) error {
	switch {
	case errors.Is(err, app.ErrInvalidHandSize),
		errors.Is(err, app.ErrInvalidMove),
		errors.Is(err, app.ErrCardNotHeld):
		return runtime.NewError(err.Error(), 3) // INVALID_ARGUMENT
	case errors.Is(err, ports.ErrGameNotFound),
		errors.Is(err, ports.ErrSeriesNotFound):
		return runtime.NewError(err.Error(), 5) // NOT_FOUND
	case errors.Is(err, app.ErrNotParticipant):
		return runtime.NewError(err.Error(), 7) // PERMISSION_DENIED
	case errors.Is(err, app.ErrGameNotActive),
		errors.Is(err, app.ErrNotYourTurn),
		errors.Is(err, app.ErrTrickFull),
		errors.Is(err, app.ErrTrickIncomplete),
		errors.Is(err, app.ErrNotBotTurn),
		errors.Is(err, app.ErrJoinClosed),
		errors.Is(err, app.ErrOwnGame),
		errors.Is(err, app.ErrInsufficientCoin),
		errors.Is(err, app.ErrSeriesNotOpen),
		errors.Is(err, app.ErrSeriesEnded):
		return runtime.NewError(err.Error(), 9) // FAILED_PRECONDITION
	case errors.Is(err, ports.ErrConflict):
		return runtime.NewError(err.Error(), 10) // ABORTED
	default:
		return runtime.NewError("internal error", 13) // INTERNAL
	}
}
