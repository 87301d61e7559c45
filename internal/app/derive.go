package app

// DefaultDerivationSuffix is the fixed calendar-year suffix appended to
// derived Phase-1 passwords when no suffix is configured.
const DefaultDerivationSuffix = "18"

// DerivePhase1Password derives a student's Phase-1 password from their
// institutional id-number: the first 4 characters (the whole string if
// shorter) plus the configured suffix. This is a business rule the student
// body is told out of band, not a cryptographic scheme; it has to match the
// provisioned credential bit for bit. An empty id-number yields an empty
// password so it can never match anything.
func DerivePhase1Password(idNumber, suffix string) string {
	if idNumber == "" {
		return ""
	}
	prefix := idNumber
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	return prefix + suffix
}
