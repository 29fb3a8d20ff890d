package notify

import (
	"fmt"
	"math/rand"
)

// roasts is the fixed pool of nag messages. One is picked at random every
// time the user backgrounds the tab below quota.
var roasts = []string{
	"Leaving already? Your reply quota is sitting there, unfinished.",
	"The timeline doesn't reply to itself. Get back in there.",
	"You had one job today. It involved the reply button.",
	"Somewhere out there a take is going unanswered. Because of you.",
	"Closing the tab doesn't close the quota.",
	"Bold move, walking away mid-quota. Bold and wrong.",
	"Your streak called. It's worried about you.",
	"Real reply guys finish what they start.",
}

// RandomRoast picks a nag message from the pool.
func RandomRoast() string {
	return roasts[rand.Intn(len(roasts))]
}

// Roasts returns the full pool, for renderers that preload messages.
func Roasts() []string {
	out := make([]string, len(roasts))
	copy(out, roasts)
	return out
}

// TabTitle is the passive-aggressive title suggested for a backgrounded tab
// with remaining replies outstanding.
func TabTitle(remaining int) string {
	return fmt.Sprintf("(%d LEFT) DON'T LEAVE!", remaining)
}

// CelebrationHeadline returns the subject line for a milestone celebration.
func CelebrationHeadline(milestone int) string {
	switch {
	case milestone >= 1000:
		return fmt.Sprintf("%d replies. Seek help. But also: incredible.", milestone)
	case milestone >= 500:
		return fmt.Sprintf("%d replies today. The algorithm fears you.", milestone)
	case milestone >= 100:
		return fmt.Sprintf("%d replies! Triple digits!", milestone)
	default:
		return fmt.Sprintf("Milestone reached: %d replies", milestone)
	}
}
