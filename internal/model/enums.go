package model

type PartnerStatus string

const (
	PartnerStatusPending   PartnerStatus = "PENDING"
	PartnerStatusActive    PartnerStatus = "ACTIVE"
	PartnerStatusSuspended PartnerStatus = "SUSPENDED"
	PartnerStatusWithdrawn PartnerStatus = "WITHDRAWN"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

type GymType string

const (
	GymTypeIndividual GymType = "INDIVIDUAL"
	GymTypeFranchise  GymType = "FRANCHISE"
)

func (g GymType) Valid() bool {
	return g == GymTypeIndividual || g == GymTypeFranchise
}

type SecurityEventType string

const (
	EventLogin        SecurityEventType = "LOGIN"
	EventLoginFail    SecurityEventType = "LOGIN_FAIL"
	EventLogout       SecurityEventType = "LOGOUT"
	EventAccountLock  SecurityEventType = "ACCOUNT_LOCK"
	EventTokenRefresh SecurityEventType = "TOKEN_REFRESH"
	EventRegister     SecurityEventType = "REGISTER"
)

type EventResult string

const (
	ResultSuccess EventResult = "SUCCESS"
	ResultFail    EventResult = "FAIL"
	ResultError   EventResult = "ERROR"
)
