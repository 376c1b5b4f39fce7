// Package textutils provides named constants for common ASCII characters and
// strings used throughout the library, avoiding magic rune/byte/string literals.
package textutils

const (
	// EmptyStr is the empty string.
	EmptyStr = ""
	// WhiteSpaceStr is a single space character.
	WhiteSpaceStr = " "
	// NewLineString is the newline character.
	NewLineString = "\n"
	// ColonStr is the colon character.
	ColonStr = ":"
	// SemiColonStr is the semicolon character.
	SemiColonStr = ";"
	// EqualStr is the equals character.
	EqualStr = "="
	// PeriodStr is the period character.
	PeriodStr = "."
	// ForwardSlashStr is the forward slash character.
	ForwardSlashStr = "/"
	// CloseBraceStr is the closing brace character.
	CloseBraceStr = "}"
)

const (
	// AUpperChar is the rune for uppercase 'A'.
	AUpperChar = 'A'
	// ZUpperChar is the rune for uppercase 'Z'.
	ZUpperChar = 'Z'
	// ALowerChar is the rune for lowercase 'a'.
	ALowerChar = 'a'
	// ZLowerChar is the rune for lowercase 'z'.
	ZLowerChar = 'z'
	// BackSlashChar is the rune for '\'.
	BackSlashChar = '\\'
	// ColonChar is the rune for ':'.
	ColonChar = ':'
	// DollarChar is the rune for '$'.
	DollarChar = '$'
	// EqualChar is the rune for '='.
	EqualChar = '='
	// ForwardSlashChar is the rune for '/'.
	ForwardSlashChar = '/'
	// HashChar is the rune for '#'.
	HashChar = '#'
	// OpenBraceChar is the rune for '{'.
	OpenBraceChar = '{'
	// CloseBraceChar is the rune for '}'.
	CloseBraceChar = '}'
)
