package tui

type state int

const (
	engineState state = iota
	sourceState
	loadingState
	playerState
	errorState
)
