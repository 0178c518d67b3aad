package search

// Detail levels for GetAtLevel
const (
	LevelKeys       = 0 // keys and scores
	LevelSummary    = 1 // + role, description
	LevelSignatures = 2 // + file, signature, effects, consumers, context
	LevelCode       = 3 // + extracted method code
	LevelWholeFiles = 4 // + whole owning files

	MaxDetailLevel     = LevelWholeFiles
	DefaultDetailLevel = LevelSummary
)

// TokensPerLine approximates the token cost of one line of code, used to
// estimate the payload of a detail level
const TokensPerLine = 20
