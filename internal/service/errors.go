package service

import "errors"

// Sentinel errors for admin member operations. Handler layers translate
// these to status codes; the Norwegian messages are shown verbatim to the
// admin caller.
var (
	ErrMemberNotFound     = errors.New("medlemmet ble ikke funnet")
	ErrSelfBan            = errors.New("du kan ikke utestenge deg selv")
	ErrSelfDelete         = errors.New("du kan ikke slette deg selv")
	ErrInvalidPrivilege   = errors.New("ugyldig tilgangsnivå")
	ErrForbiddenPrivilege = errors.New("du har ikke tilgang til å sette dette tilgangsnivået")
	ErrInconsistentMirror = errors.New("utestengingsstatus samsvarer ikke mellom autentisering og medlemsregisteret, sjekk synkroniseringen")
	ErrNoTargets          = errors.New("ingen medlemmer oppgitt")
	ErrPrintJobNotFound   = errors.New("utskriftsjobben ble ikke funnet")
	ErrInvalidPrintStatus = errors.New("enten completed eller error_msg må være satt")
	ErrPrintJobTerminal   = errors.New("utskriftsjobben er allerede avsluttet")
	ErrAuditWriteFailed   = errors.New("kunne ikke skrive til aktivitetsloggen")
)
