package nakama

// Nakama RPC ids clients call.
const (
	RpcIDCreateGame   = "create_game"
	RpcIDJoinGame     = "join_game"
	RpcIDMakeMove     = "make_move"
	RpcIDGetState     = "get_game_state"
	RpcIDListGames    = "list_open_games"
	RpcIDCreateSeries = "create_series"
	RpcIDJoinSeries   = "join_series"
	RpcIDGetSeries    = "get_series_state"
)

// Storage collections for durable game and series state. Objects are
// system-owned: clients can never read or write them directly.
const (
	gamesCollection  = "bisca_games"
	seriesCollection = "bisca_series"
)

// Wallet currency key.
const walletKeyCoins = "coins"
