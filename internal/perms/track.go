package perms

// PromotionStatus is the outcome of a promotion attempt.
type PromotionStatus string

// Promotion statuses.
const (
	PromotionSuccess           PromotionStatus = "success"
	PromotionAddedToFirstGroup PromotionStatus = "added_to_first_group"
	PromotionMalformedTrack    PromotionStatus = "malformed_track"
	PromotionEndOfTrack        PromotionStatus = "end_of_track"
	PromotionAmbiguousCall     PromotionStatus = "ambiguous_call"
	PromotionUndefinedFailure  PromotionStatus = "undefined_failure"
)

// DemotionStatus is the outcome of a demotion attempt.
type DemotionStatus string

// Demotion statuses.
const (
	DemotionSuccess               DemotionStatus = "success"
	DemotionRemovedFromFirstGroup DemotionStatus = "removed_from_first_group"
	DemotionMalformedTrack        DemotionStatus = "malformed_track"
	DemotionNotOnTrack            DemotionStatus = "not_on_track"
	DemotionAmbiguousCall         DemotionStatus = "ambiguous_call"
	DemotionUndefinedFailure      DemotionStatus = "undefined_failure"
)

// PromotionResult describes a promotion along a track.
type PromotionResult struct {
	Status    PromotionStatus
	GroupFrom *string
	GroupTo   *string
}

// Success reports whether the user was moved.
func (r PromotionResult) Success() bool {
	return r.Status == PromotionSuccess || r.Status == PromotionAddedToFirstGroup
}

// DemotionResult describes a demotion along a track.
type DemotionResult struct {
	Status    DemotionStatus
	GroupFrom *string
	GroupTo   *string
}

// Success reports whether the user was moved.
func (r DemotionResult) Success() bool {
	return r.Status == DemotionSuccess || r.Status == DemotionRemovedFromFirstGroup
}
