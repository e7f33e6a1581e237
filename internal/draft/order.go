package draft

// ActionType distinguishes a ban from a pick within the draft sequence.
type ActionType string

const (
	ActionBan  ActionType = "ban"
	ActionPick ActionType = "pick"
)

// Team identifies one of the two sides of a draft.
type Team string

const (
	TeamBlue Team = "blue"
	TeamRed  Team = "red"
)

// StepSpec is one entry of the fixed 20-step draft order: which team acts,
// and whether it's a ban or a pick.
type StepSpec struct {
	Type ActionType
	Team Team
}

// Order is the fixed 20-step ban/pick sequence from spec §3, resolved here
// as a package-level constant per design note §9 ("implementations should
// make this a constant, not re-derive"): bans 1-6 alternate blue/red at
// indices 0-5; picks 1-6 at indices 6-11 in pattern blue,red,red,blue,blue,red;
// bans 7-10 at indices 12-15 in pattern blue,red,blue,red; picks 7-10 at
// indices 16-19 in pattern red,blue,red,blue.
var Order = [20]StepSpec{
	// Ban phase 1 (indices 0-5): blue, red, blue, red, blue, red
	{ActionBan, TeamBlue}, {ActionBan, TeamRed},
	{ActionBan, TeamBlue}, {ActionBan, TeamRed},
	{ActionBan, TeamBlue}, {ActionBan, TeamRed},

	// Pick phase 1 (indices 6-11): blue, red, red, blue, blue, red
	{ActionPick, TeamBlue}, {ActionPick, TeamRed},
	{ActionPick, TeamRed}, {ActionPick, TeamBlue},
	{ActionPick, TeamBlue}, {ActionPick, TeamRed},

	// Ban phase 2 (indices 12-15): blue, red, blue, red
	{ActionBan, TeamBlue}, {ActionBan, TeamRed},
	{ActionBan, TeamBlue}, {ActionBan, TeamRed},

	// Pick phase 2 (indices 16-19): red, blue, red, blue
	{ActionPick, TeamRed}, {ActionPick, TeamBlue},
	{ActionPick, TeamRed}, {ActionPick, TeamBlue},
}

// actingPositionWithinTeam returns which Nth player (0-indexed) of the
// acting team performs action index i, in the pattern the spec's "Nth
// player of the appropriate team in lane order" rule implies: each team
// bans/picks in the order its players were slotted (Top, Jungle, Mid, Bot,
// Support), one step "turn" at a time as that team's actions occur.
func actingPositionWithinTeam(index int) int {
	team := Order[index].Team
	pos := 0
	for i := 0; i < index; i++ {
		if Order[i].Team == team {
			pos++
		}
	}
	return pos % 5
}
