package domain

// ImpostorWord is sent instead of the secret word to the impostor.
const ImpostorWord = "IMPOSTOR"

type RoundAssignment struct {
	Word       string
	ImpostorID string
}

// NewRoundAssignment picks the impostor among participants. pick(n) must return an index in
// [0, n) drawn uniformly.
func NewRoundAssignment(participants []User, word string, pick func(n int) int) RoundAssignment {
	if len(participants) == 0 {
		return RoundAssignment{Word: word}
	}

	return RoundAssignment{
		Word:       word,
		ImpostorID: participants[pick(len(participants))].ID,
	}
}

// WordFor returns what the given participant is told at the start of the round.
func (a RoundAssignment) WordFor(userID string) string {
	if userID == a.ImpostorID {
		return ImpostorWord
	}
	return a.Word
}
