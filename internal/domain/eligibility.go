package domain

import "time"

// Reason identifies why a license/domain pair was refused.
type Reason string

const (
	ReasonNone                  Reason = ""
	ReasonKeyNotFound           Reason = "key_not_found"
	ReasonLicenseInactive       Reason = "license_inactive"
	ReasonLicenseExpired        Reason = "license_expired"
	ReasonDomainNotAllowed      Reason = "domain_not_allowed"
	ReasonMaxActivationsReached Reason = "max_activations_reached"
	ReasonActivationNotFound    Reason = "activation_not_found"
)

var reasonMessages = map[Reason]string{
	ReasonKeyNotFound:           "license key not found",
	ReasonLicenseInactive:       "license inactive",
	ReasonLicenseExpired:        "license expired",
	ReasonDomainNotAllowed:      "domain not allowed for this license",
	ReasonMaxActivationsReached: "maximum activations reached",
	ReasonActivationNotFound:    "no activation found for this domain",
}

func (r Reason) Message() string {
	return reasonMessages[r]
}

// ActivationSnapshot is the activation state of one license as seen by a single evaluation.
type ActivationSnapshot struct {
	ActiveCount  int
	DomainActive bool
}

type Decision struct {
	Eligible bool
	Reason   Reason
}

func (d Decision) Message() string {
	if d.Eligible {
		return "license is valid for this domain"
	}
	return d.Reason.Message()
}

func refuse(r Reason) Decision {
	return Decision{Reason: r}
}

// Evaluate runs the eligibility checks in order and stops at the first failure.
// License resolution happens before this call; a missing license never reaches here.
func Evaluate(license License, snapshot ActivationSnapshot, requestDomain string, now time.Time) Decision {
	if d := CheckLicense(license, requestDomain, now); !d.Eligible {
		return d
	}
	return CheckCapacity(license, snapshot)
}

// CheckLicense covers the checks that need no activation state: active flag, expiry and
// the domain allowlist.
func CheckLicense(license License, requestDomain string, now time.Time) Decision {
	if !license.IsActive {
		return refuse(ReasonLicenseInactive)
	}
	if license.Expired(now) {
		return refuse(ReasonLicenseExpired)
	}
	if !license.AllowsDomain(requestDomain) {
		return refuse(ReasonDomainNotAllowed)
	}
	return Decision{Eligible: true}
}

// CheckCapacity refuses a full license unless the domain already holds an active activation.
func CheckCapacity(license License, snapshot ActivationSnapshot) Decision {
	if snapshot.ActiveCount >= license.MaxActivations && !snapshot.DomainActive {
		return refuse(ReasonMaxActivationsReached)
	}
	return Decision{Eligible: true}
}

// HasCapacity reports whether one more active activation fits under the cap.
func HasCapacity(license License, activeCount int) bool {
	return activeCount < license.MaxActivations
}
