// Package membership decides event admission. Every function is pure: it
// takes a snapshot of an event's attendee and waitlist queues and returns
// fresh slices, leaving persistence to the caller.
package membership

import (
	"net/http"
	"slices"
)

type Outcome string

const (
	OutcomeJoined       Outcome = "joined"
	OutcomeWaitlisted   Outcome = "waitlisted"
	OutcomeLeft         Outcome = "left"
	OutcomeLeftWaitlist Outcome = "left_waitlist"
	OutcomeRebalanced   Outcome = "rebalanced"
)

// AdmissionError is returned when a join or leave request does not apply to
// the user's current position.
type AdmissionError struct {
	Code string
	msg  string
}

func (e *AdmissionError) Error() string { return e.msg }

func (e *AdmissionError) HTTPStatus() int { return http.StatusConflict }

func (e *AdmissionError) MessageKey() string { return "alert." + e.Code }

var (
	ErrAlreadyMember     = &AdmissionError{Code: "already_member", msg: "user is already attending this event"}
	ErrAlreadyWaitlisted = &AdmissionError{Code: "already_waitlisted", msg: "user is already on the waitlist"}
	ErrNotMember         = &AdmissionError{Code: "not_member", msg: "user is neither attending nor waitlisted"}
)

// Snapshot is the admission-relevant part of an event. A nil MaxAttendees
// means unlimited capacity.
type Snapshot struct {
	Attendees    []string
	Waitlist     []string
	MaxAttendees *int
}

// Result is the state to persist after an operation.
type Result struct {
	Attendees []string
	Waitlist  []string
	Outcome   Outcome
	// Promoted is set when a leave moved the head of the waitlist into
	// attendees.
	Promoted string
	// PromotedAll lists every user moved by Rebalance, in queue order.
	PromotedAll []string
}

func (s Snapshot) hasRoom(attendees int) bool {
	return s.MaxAttendees == nil || attendees < *s.MaxAttendees
}

// Join admits userID or queues it when the event is full.
func Join(s Snapshot, userID string) (Result, error) {
	if slices.Contains(s.Attendees, userID) {
		return Result{}, ErrAlreadyMember
	}
	if slices.Contains(s.Waitlist, userID) {
		return Result{}, ErrAlreadyWaitlisted
	}

	attendees := slices.Clone(s.Attendees)
	waitlist := slices.Clone(s.Waitlist)

	if s.hasRoom(len(attendees)) {
		return Result{
			Attendees: append(attendees, userID),
			Waitlist:  nonNil(waitlist),
			Outcome:   OutcomeJoined,
		}, nil
	}

	return Result{
		Attendees: nonNil(attendees),
		Waitlist:  append(waitlist, userID),
		Outcome:   OutcomeWaitlisted,
	}, nil
}

// Leave removes userID from whichever queue holds it. A freed attendee spot
// goes to the head of the waitlist.
func Leave(s Snapshot, userID string) (Result, error) {
	if i := slices.Index(s.Attendees, userID); i >= 0 {
		attendees := slices.Delete(slices.Clone(s.Attendees), i, i+1)
		waitlist := slices.Clone(s.Waitlist)

		res := Result{Outcome: OutcomeLeft}
		if len(waitlist) > 0 && s.hasRoom(len(attendees)) {
			res.Promoted = waitlist[0]
			attendees = append(attendees, waitlist[0])
			waitlist = waitlist[1:]
		}
		res.Attendees = nonNil(attendees)
		res.Waitlist = nonNil(waitlist)
		return res, nil
	}

	if i := slices.Index(s.Waitlist, userID); i >= 0 {
		return Result{
			Attendees: nonNil(slices.Clone(s.Attendees)),
			Waitlist:  nonNil(slices.Delete(slices.Clone(s.Waitlist), i, i+1)),
			Outcome:   OutcomeLeftWaitlist,
		}, nil
	}

	return Result{}, ErrNotMember
}

// Rebalance promotes from the head of the waitlist while capacity allows.
// Used after an admin raises or removes the attendee cap.
func Rebalance(s Snapshot) Result {
	attendees := slices.Clone(s.Attendees)
	waitlist := slices.Clone(s.Waitlist)

	var promoted []string
	for len(waitlist) > 0 && s.hasRoom(len(attendees)) {
		promoted = append(promoted, waitlist[0])
		attendees = append(attendees, waitlist[0])
		waitlist = waitlist[1:]
	}

	return Result{
		Attendees:   nonNil(attendees),
		Waitlist:    nonNil(waitlist),
		Outcome:     OutcomeRebalanced,
		PromotedAll: promoted,
	}
}

// Position reports where userID currently sits.
func Position(s Snapshot, userID string) (attending bool, waitlistIndex int) {
	if slices.Contains(s.Attendees, userID) {
		return true, -1
	}
	return false, slices.Index(s.Waitlist, userID)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
