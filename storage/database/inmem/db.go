// Package inmemdb provides in-memory repository implementations with the
// same reconciliation semantics as the Postgres ones. Used by tests and
// local development.
package inmemdb

import (
	"sync"

	"github.com/opiskelu/palaute/core/course"
	"github.com/opiskelu/palaute/core/feedback"
	"github.com/opiskelu/palaute/core/user"
)

type DB struct {
	mu sync.RWMutex

	courseUnits        map[string]*course.CourseUnit
	courseUnitOrgs     map[string]course.CourseUnitOrganisation
	courseRealisations map[string]*course.CourseRealisation
	realisationOrgs    map[string]course.CourseRealisationOrganisation
	organisations      map[string]*course.Organisation

	targets      map[string]*feedback.Target // by row id
	targetIDs    map[string]string           // feedbackType|typeId -> row id
	userTargets  map[string]*feedback.UserTarget
	surveys      map[string]*feedback.Survey
	questions    map[int]*feedback.Question
	dateChecks   []feedback.DateCheck
	users        map[string]*user.User
}

func Open() *DB {
	return &DB{
		courseUnits:        make(map[string]*course.CourseUnit),
		courseUnitOrgs:     make(map[string]course.CourseUnitOrganisation),
		courseRealisations: make(map[string]*course.CourseRealisation),
		realisationOrgs:    make(map[string]course.CourseRealisationOrganisation),
		organisations:      make(map[string]*course.Organisation),
		targets:            make(map[string]*feedback.Target),
		targetIDs:          make(map[string]string),
		userTargets:        make(map[string]*feedback.UserTarget),
		surveys:            make(map[string]*feedback.Survey),
		questions:          make(map[int]*feedback.Question),
		users:              make(map[string]*user.User),
	}
}

func targetKey(feedbackType, typeID string) string {
	return feedbackType + "|" + typeID
}

func userTargetKey(ut feedback.UserTarget) string {
	return ut.UserID + "|" + ut.FeedbackTargetID + "|" + ut.AccessStatus
}

// Seed helpers used by tests.

func (db *DB) AddOrganisation(org course.Organisation) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.organisations[org.ID] = &org
}

func (db *DB) AddUser(u user.User) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users[u.ID] = &u
}

func (db *DB) AddSurvey(s feedback.Survey) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.surveys[s.ID] = &s
}

func (db *DB) AddQuestion(q feedback.Question) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.questions[q.ID] = &q
}

// SetTarget overwrites a feedback target row, e.g. to simulate teacher edits.
func (db *DB) SetTarget(t feedback.Target) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.targets[t.ID] = &t
	db.targetIDs[targetKey(t.FeedbackType, t.TypeID)] = t.ID
}

// Target returns a copy of the target row, by (feedbackType, typeId).
func (db *DB) Target(feedbackType, typeID string) (feedback.Target, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	id, ok := db.targetIDs[targetKey(feedbackType, typeID)]
	if !ok {
		return feedback.Target{}, false
	}
	return *db.targets[id], true
}

// User returns a copy of the user row.
func (db *DB) User(id string) (user.User, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[id]
	if !ok {
		return user.User{}, false
	}
	return *u, true
}

// SetUserTargetFeedback marks a user target as having submitted feedback.
func (db *DB) SetUserTargetFeedback(ut feedback.UserTarget) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.userTargets[userTargetKey(ut)] = &ut
}

// Counts returns table sizes for idempotence assertions.
func (db *DB) Counts() map[string]int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return map[string]int{
		"courseUnits":        len(db.courseUnits),
		"courseUnitOrgs":     len(db.courseUnitOrgs),
		"courseRealisations": len(db.courseRealisations),
		"realisationOrgs":    len(db.realisationOrgs),
		"targets":            len(db.targets),
		"userTargets":        len(db.userTargets),
		"surveys":            len(db.surveys),
		"dateChecks":         len(db.dateChecks),
	}
}

// DateChecks returns a copy of the emitted date-check rows.
func (db *DB) DateChecks() []feedback.DateCheck {
	db.mu.RLock()
	defer db.mu.RUnlock()
	checks := make([]feedback.DateCheck, len(db.dateChecks))
	copy(checks, db.dateChecks)
	return checks
}

// CourseRealisation returns a copy of the realisation row.
func (db *DB) CourseRealisation(id string) (course.CourseRealisation, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	cr, ok := db.courseRealisations[id]
	if !ok {
		return course.CourseRealisation{}, false
	}
	return *cr, true
}

// CourseUnitOrganisations returns copies of the unit's organisation links.
func (db *DB) CourseUnitOrganisations(courseUnitID string) []course.CourseUnitOrganisation {
	db.mu.RLock()
	defer db.mu.RUnlock()
	links := make([]course.CourseUnitOrganisation, 0)
	for _, link := range db.courseUnitOrgs {
		if link.CourseUnitID == courseUnitID {
			links = append(links, link)
		}
	}
	return links
}

// UserTargets returns copies of all user target rows of a target.
func (db *DB) UserTargets(targetID string) []feedback.UserTarget {
	db.mu.RLock()
	defer db.mu.RUnlock()
	links := make([]feedback.UserTarget, 0)
	for _, ut := range db.userTargets {
		if ut.FeedbackTargetID == targetID {
			links = append(links, *ut)
		}
	}
	return links
}
