package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword returns the bcrypt hash stored for local accounts; OAuth
// accounts never carry one.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a stored bcrypt hash with the password submitted
// on the login form.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
