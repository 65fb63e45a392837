package engine

import (
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Phase is where the session stands in the night/day cycle.
type Phase string

const (
	PhaseSetup      Phase = "setup"
	PhaseNight      Phase = "night"
	PhaseDayResults Phase = "day-results"
	PhaseDayVote    Phase = "day-vote"
	PhaseEnded      Phase = "ended"
)

// Session is the authoritative state of one game. It is not safe for
// concurrent use; every method either succeeds or leaves the session exactly
// as it was.
type Session struct {
	id      string
	catalog *Catalog
	log     logrus.FieldLogger

	roster     []Player
	round      int
	phase      Phase
	seq        *NightSequencer
	collector  *ActionCollector
	current    RoleID
	ravenMark  PlayerID
	pending    []PlayerID
	voteDone   bool
	outcome    Outcome
	lastDeaths []Death
}

type options struct {
	id  string
	rnd Shuffler
	log logrus.FieldLogger
}

// Option configures a new or restored session.
type Option func(*options)

// WithRand sets the random source used to deal roles.
func WithRand(r Shuffler) Option {
	return func(o *options) { o.rnd = r }
}

// WithLogger sets the logger the session reports its decisions to.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.id == "" {
		o.id = uuid.NewString()
	}
	if o.rnd == nil {
		o.rnd = NewRandom()
	}
	if o.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.log = l
	}
	return o
}

// NewSession validates the table and the role selection, deals the roles and
// returns a session in the setup phase. Selection keys may be role ids or
// display names.
func NewSession(players []string, selection Selection, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	catalog := DefaultCatalog()

	if err := validatePlayers(players); err != nil {
		return nil, err
	}
	sel, err := normalizeSelection(catalog, selection)
	if err != nil {
		return nil, err
	}
	if sel.Size() != len(players) {
		return nil, newError(CodeRoleCountMismatch, "selection has %d roles for %d players", sel.Size(), len(players))
	}
	if err := validateSelection(catalog, sel); err != nil {
		return nil, err
	}

	roster, err := Assign(catalog, players, sel, o.rnd)
	if err != nil {
		return nil, err
	}

	s := &Session{
		id:        o.id,
		catalog:   catalog,
		log:       o.log.WithField("session", o.id),
		roster:    roster,
		round:     1,
		phase:     PhaseSetup,
		seq:       NewNightSequencer(catalog),
		collector: NewActionCollector(catalog),
	}
	s.log.WithField("players", len(roster)).Info("roles dealt")
	return s, nil
}

func validatePlayers(players []string) error {
	if len(players) < MinPlayers || len(players) > MaxPlayers {
		return newError(CodeInvalidConfiguration, "%d players, need %d..%d", len(players), MinPlayers, MaxPlayers)
	}
	seen := make(map[string]bool, len(players))
	for _, name := range players {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return newError(CodeInvalidConfiguration, "player names must not be empty")
		}
		if seen[key] {
			return newError(CodeInvalidConfiguration, "player %q appears twice", name)
		}
		seen[key] = true
	}
	return nil
}

func normalizeSelection(catalog *Catalog, selection Selection) (Selection, error) {
	out := make(Selection, len(selection))
	for key, n := range selection {
		d, ok := catalog.Resolve(string(key))
		if !ok {
			return nil, newError(CodeInvalidConfiguration, "unknown role %q", key)
		}
		if n < 0 {
			return nil, newError(CodeInvalidConfiguration, "negative count for %s", d.Name)
		}
		out[d.ID] += n
	}
	return out, nil
}

func validateSelection(catalog *Catalog, sel Selection) error {
	wolves := 0
	for _, d := range catalog.DefinitionsFor(FactionWerewolf) {
		wolves += sel[d.ID]
	}
	if wolves < 1 {
		return newError(CodeInvalidConfiguration, "at least one werewolf is required")
	}
	for _, d := range catalog.roles {
		if sel[d.ID] < d.MinimumCount {
			return newError(CodeInvalidConfiguration, "%s needs at least %d", d.Name, d.MinimumCount)
		}
	}
	return nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Catalog returns the role catalog the session plays with.
func (s *Session) Catalog() *Catalog { return s.catalog }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Round returns the current round number, starting at 1.
func (s *Session) Round() int { return s.round }

// Outcome returns the winner, or OutcomeNone while the game runs.
func (s *Session) Outcome() Outcome { return s.outcome }

// Roster returns a copy of the players.
func (s *Session) Roster() []Player { return CloneRoster(s.roster) }

// PendingRevenge lists dead Chasseurs who still have to shoot.
func (s *Session) PendingRevenge() []PlayerID {
	return append([]PlayerID(nil), s.pending...)
}

// Start ends the role reveal and begins the first night.
func (s *Session) Start() error {
	if s.phase != PhaseSetup {
		return newError(CodeActionNotPermitted, "game already started")
	}
	s.phase = PhaseNight
	s.seq.Restart(s.round)
	s.advance()
	s.log.WithField("round", s.round).Info("night falls")
	return nil
}

// CurrentActingRole returns the role whose turn it is, or false when every
// eligible role has acted and the night can be finished.
func (s *Session) CurrentActingRole() (RoleDefinition, bool) {
	if s.phase != PhaseNight || s.current == "" {
		return RoleDefinition{}, false
	}
	return s.catalog.Lookup(s.current)
}

func (s *Session) advance() {
	s.current = ""
	if d, ok := s.seq.Next(s.roster); ok {
		s.current = d.ID
	}
}

// SubmitNightAction records the acting role's choice and moves to the next
// role. role may be an id or a display name.
func (s *Session) SubmitNightAction(role RoleID, a Action) (ActionResult, error) {
	if s.phase != PhaseNight {
		return ActionResult{}, newError(CodeActionNotPermitted, "night actions are closed during %s", s.phase)
	}
	d, ok := s.catalog.Resolve(string(role))
	if !ok {
		return ActionResult{}, newError(CodeActionNotPermitted, "unknown role %q", role)
	}
	if _, err := s.collector.Check(s.roster, d.ID, a); err != nil {
		return ActionResult{}, err
	}
	if d.ID != s.current {
		return ActionResult{}, newError(CodeActionNotPermitted, "it is not the %s's turn", d.Name)
	}

	res, err := s.collector.Record(s.roster, d.ID, a)
	if err != nil {
		return ActionResult{}, err
	}
	s.seq.MarkUsed(d.ID)
	if res.WerewolfNearby != nil && !*res.WerewolfNearby {
		s.seq.Disable(d.ID)
	}
	s.log.WithFields(logrus.Fields{"round": s.round, "role": d.ID}).Debug("night action recorded")
	s.advance()
	return res, nil
}

// SkipTurn passes over the current role without an action. The moderator uses
// it for an unresponsive player.
func (s *Session) SkipTurn() (RoleDefinition, error) {
	d, ok := s.CurrentActingRole()
	if !ok {
		return RoleDefinition{}, newError(CodeActionNotPermitted, "no role is awake")
	}
	s.log.WithFields(logrus.Fields{"round": s.round, "role": d.ID}).Info("turn skipped")
	s.advance()
	return d, nil
}

// NightReport is the result of FinishNight.
type NightReport struct {
	Round   int        `json:"round"`
	Deaths  []Death    `json:"deaths"`
	Pending []PlayerID `json:"pending,omitempty"`
	Outcome Outcome    `json:"outcome"`
}

// FinishNight resolves the night. Roles that have not acted yet are treated
// as passing.
func (s *Session) FinishNight() (NightReport, error) {
	if s.phase != PhaseNight {
		return NightReport{}, newError(CodeActionNotPermitted, "cannot finish the night during %s", s.phase)
	}
	actions := s.collector.Actions()
	res := ResolveNight(s.catalog, s.roster, actions, nil)

	if pair, ok := actions[RoleCupid]; ok {
		for _, id := range pair.Pair {
			s.roster[id-1].addStatus(StatusLover)
		}
	}
	ApplyDeaths(s.roster, res.IDs())
	s.ravenMark = 0
	if mark := actions[RoleRaven].Target; mark != 0 && s.roster[mark-1].Alive {
		s.ravenMark = mark
	}
	s.current = ""
	s.pending = res.Pending
	s.lastDeaths = res.Deaths
	s.phase = PhaseDayResults

	for _, d := range res.Deaths {
		s.log.WithFields(logrus.Fields{"round": s.round, "player": s.roster[d.Player-1].Name, "cause": d.Cause}).Info("died in the night")
	}
	s.settle()
	return NightReport{Round: s.round, Deaths: res.Deaths, Pending: s.PendingRevenge(), Outcome: s.outcome}, nil
}

// OpenVote moves from the night results to the village vote.
func (s *Session) OpenVote() error {
	if s.phase != PhaseDayResults {
		return newError(CodeActionNotPermitted, "cannot open the vote during %s", s.phase)
	}
	if len(s.pending) > 0 {
		return newError(CodeActionNotPermitted, "a revenge shot is pending")
	}
	s.phase = PhaseDayVote
	return nil
}

// VoteReport is the result of SubmitVotes.
type VoteReport struct {
	Tally      VoteTally  `json:"tally"`
	Eliminated PlayerID   `json:"eliminated"`
	Deaths     []Death    `json:"deaths"`
	Pending    []PlayerID `json:"pending,omitempty"`
	Outcome    Outcome    `json:"outcome"`
}

// SubmitVotes resolves the village vote. A tie eliminates nobody. Unless the
// game ends or a revenge shot is pending, the next night starts.
func (s *Session) SubmitVotes(votes Votes) (VoteReport, error) {
	if (s.phase != PhaseDayResults && s.phase != PhaseDayVote) || s.voteDone {
		return VoteReport{}, newError(CodeActionNotPermitted, "cannot vote during %s", s.phase)
	}
	if len(s.pending) > 0 {
		return VoteReport{}, newError(CodeActionNotPermitted, "a revenge shot is pending")
	}
	var bonus map[PlayerID]int
	if s.ravenMark != 0 {
		bonus = map[PlayerID]int{s.ravenMark: RavenBonus}
	}
	tally, err := TallyVotes(s.roster, votes, bonus)
	if err != nil {
		return VoteReport{}, err
	}

	report := VoteReport{Tally: tally, Eliminated: tally.Eliminated}
	s.phase = PhaseDayVote
	s.voteDone = true
	if tally.Eliminated == 0 {
		s.log.WithField("round", s.round).Info("no majority, nobody is eliminated")
	} else {
		res := ResolveDeaths(s.catalog, s.roster, []Death{{tally.Eliminated, CauseVillageVote}}, nil)
		s.roster[tally.Eliminated-1].addStatus(StatusVotedByVillage)
		ApplyDeaths(s.roster, res.IDs())
		s.pending = res.Pending
		report.Deaths = res.Deaths
		s.log.WithFields(logrus.Fields{"round": s.round, "player": s.roster[tally.Eliminated-1].Name}).Info("eliminated by the village")
	}
	s.settle()
	report.Pending = s.PendingRevenge()
	report.Outcome = s.outcome
	return report, nil
}

// RevengeReport is the result of SubmitRevenge.
type RevengeReport struct {
	Deaths  []Death    `json:"deaths"`
	Pending []PlayerID `json:"pending,omitempty"`
	Outcome Outcome    `json:"outcome"`
}

// SubmitRevenge fires a dead Chasseur's shot. target 0 declines the shot.
func (s *Session) SubmitRevenge(hunter, target PlayerID) (RevengeReport, error) {
	idx := -1
	for i, id := range s.pending {
		if id == hunter {
			idx = i
		}
	}
	if idx < 0 {
		return RevengeReport{}, newError(CodeActionNotPermitted, "player %d has no revenge shot", hunter)
	}
	var res Resolution
	if target != 0 {
		if _, err := livingTarget(s.roster, target); err != nil {
			return RevengeReport{}, err
		}
		res = ResolveDeaths(s.catalog, s.roster, []Death{{target, CauseRevenge}}, nil)
		ApplyDeaths(s.roster, res.IDs())
		s.log.WithFields(logrus.Fields{"hunter": s.roster[hunter-1].Name, "target": s.roster[target-1].Name}).Info("revenge shot")
	}
	s.pending = append(append([]PlayerID(nil), s.pending[:idx]...), s.pending[idx+1:]...)
	s.pending = append(s.pending, res.Pending...)
	s.lastDeaths = append(s.lastDeaths, res.Deaths...)
	s.settle()
	return RevengeReport{Deaths: res.Deaths, Pending: s.PendingRevenge(), Outcome: s.outcome}, nil
}

// settle checks for a winner once no revenge shot is outstanding and starts
// the next round after a completed vote.
func (s *Session) settle() {
	if len(s.pending) > 0 {
		return
	}
	s.outcome = Evaluate(s.catalog, s.roster)
	if s.outcome.Terminal() {
		s.phase = PhaseEnded
		s.current = ""
		s.log.WithFields(logrus.Fields{"round": s.round, "winner": s.outcome}).Info("game over")
		return
	}
	if s.voteDone {
		s.nextRound()
	}
}

func (s *Session) nextRound() {
	s.round++
	s.phase = PhaseNight
	s.voteDone = false
	s.ravenMark = 0
	s.lastDeaths = nil
	s.collector.Reset(s.round)
	s.seq.Restart(s.round)
	s.advance()
	s.log.WithField("round", s.round).Info("night falls")
}
