package loadgen

import (
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/okian/lineup/internal/domain/model"
)

// Passenger mix in percent.
const (
	premiumPercent    = 10
	elevatedPercent   = 20
	assistancePercent = 15
)

// Passenger is one synthetic join request.
type Passenger struct {
	SubjectID       string             `json:"subject_id"`
	ServiceClass    model.ServiceClass `json:"service_class"`
	NeedsAssistance bool               `json:"needs_assistance"`
}

// generatePassengers builds n passengers with unique subject ids. The class
// mix is reproducible for a given seed.
func generatePassengers(n int, seed uint64) []Passenger {
	rnd := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	out := make([]Passenger, n)
	for i := range out {
		class := model.ClassStandard
		switch roll := rnd.IntN(100); {
		case roll < premiumPercent:
			class = model.ClassPremium
		case roll < premiumPercent+elevatedPercent:
			class = model.ClassElevated
		}
		out[i] = Passenger{
			SubjectID:       "load-" + uuid.NewString(),
			ServiceClass:    class,
			NeedsAssistance: rnd.IntN(100) < assistancePercent,
		}
	}
	return out
}
