package security

// maxEmailLength is the RFC 5321 path limit.
const maxEmailLength = 254

// RegisterRules validates account registration bodies.
func RegisterRules() Rules {
	return Rules{
		{Field: "username", Required: true, Type: TypeUsername, Sanitize: true},
		{Field: "email", Required: true, Type: TypeEmail, MaxLength: maxEmailLength, Sanitize: true},
		{Field: "password", Required: true, Type: TypePassword},
	}
}

// LoginRules validates credential login bodies.
func LoginRules() Rules {
	return Rules{
		{Field: "email", Required: true, Type: TypeEmail, MaxLength: maxEmailLength, Sanitize: true},
		{Field: "password", Required: true, Type: TypeString, MinLength: 1},
	}
}

// FirebaseLoginRules validates social login bodies forwarded after the
// identity provider has verified the user.
func FirebaseLoginRules() Rules {
	return Rules{
		{Field: "email", Required: true, Type: TypeEmail, MaxLength: maxEmailLength, Sanitize: true},
		{Field: "uid", Required: true, Type: TypeString, MinLength: 1, Sanitize: true},
		{Field: "displayName", Type: TypeString, MaxLength: 100, Sanitize: true},
	}
}
