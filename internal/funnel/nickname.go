package funnel

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

var nickAnimals = []string{"Falcon", "Eagle", "Wolf", "Tiger", "Fox", "Hawk", "Raven", "Shark"}

// generateNickname produces a Player_<Animal>_<NNNN> style nickname.
func generateNickname() string {
	animal := nickAnimals[rand.IntN(len(nickAnimals))]
	return fmt.Sprintf("Player_%s_%d", animal, 1000+rand.IntN(9000))
}

// sanitizeNickname trims whitespace and caps the nickname length in runes.
func sanitizeNickname(raw string, maxLen int) string {
	nick := strings.TrimSpace(raw)
	if maxLen <= 0 {
		return nick
	}
	runes := []rune(nick)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return nick
}
