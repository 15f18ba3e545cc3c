// Package password hashes account passwords for the demo user directory.
//
// New hashes are Argon2id in PHC form:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Compare also accepts bcrypt hashes ($2a$, $2b$, $2y$) so accounts imported
// from the previous backend keep working. [Hasher.NeedsRehash] reports true
// for those and for Argon2id hashes produced with weaker parameters, so the
// caller can re-hash after the next successful login.
//
// The package never stores passwords and never logs them.
package password
