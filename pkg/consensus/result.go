package consensus

// Result is one of Preliminary, Uncertain or Confirmed.
type Result interface {
	isResult()
}

// Preliminary means the batch is still filling up.
type Preliminary struct {
	Progress int
	Total    int
}

// Uncertain means a full batch produced no sufficiently strong majority.
type Uncertain struct {
	Progress int
	Total    int
	Ratio    float64
}

type Outcome int

const (
	OutcomeIdentified Outcome = iota
	// OutcomeNeedsName is a known user that never told us their name.
	OutcomeNeedsName
	// OutcomeNewUser is a face that was just enrolled.
	OutcomeNewUser
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNewUser:
		return "new_user"
	case OutcomeNeedsName:
		return "needs_name"
	default:
		return "identified"
	}
}

type Confirmed struct {
	UserID     string
	UserName   string
	Outcome    Outcome
	Ratio      float64
	VisitCount int
}

func (Preliminary) isResult() {}
func (Uncertain) isResult()   {}
func (Confirmed) isResult()   {}

func (c Confirmed) IsNewUser() bool {
	return c.Outcome == OutcomeNewUser
}

func (c Confirmed) NeedsIdentification() bool {
	return c.Outcome != OutcomeIdentified
}
