// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"codeberg.org/oliverandrich/go-otp-auth/internal/services/accounts"
)

//go:embed common_passwords.txt
var commonPasswordsFS embed.FS

var commonPasswords map[string]struct{}

func init() {
	commonPasswords = make(map[string]struct{})
	file, err := commonPasswordsFS.Open("common_passwords.txt")
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		password := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if password != "" {
			commonPasswords[password] = struct{}{}
		}
	}
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// PasswordValidator validates passwords against various criteria
type PasswordValidator struct {
	MinLength            int
	RejectNumeric        bool
	CheckCommonPasswords bool
	CheckUserSimilarity  bool
}

// DefaultPasswordValidator returns the lenient policy: a minimum length only.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{MinLength: 6}
}

// StrictPasswordValidator returns a policy with every check enabled.
func StrictPasswordValidator(minLength int) *PasswordValidator {
	return &PasswordValidator{
		MinLength:            minLength,
		RejectNumeric:        true,
		CheckCommonPasswords: true,
		CheckUserSimilarity:  true,
	}
}

// Validate checks a password against all configured rules. The result joins
// one *accounts.ValidationError per violated rule, or is nil.
func (v *PasswordValidator) Validate(password string, userAttributes ...string) error {
	var errs []error
	invalid := func(code, message string) {
		errs = append(errs, &accounts.ValidationError{Field: accounts.FieldPassword, Code: code, Message: message})
	}

	if len([]rune(password)) < v.MinLength {
		invalid("min_length", fmt.Sprintf("Password must be at least %d characters long.", v.MinLength))
	}
	if len(password) > maxPasswordBytes {
		invalid("max_length", fmt.Sprintf("Password must be at most %d bytes long.", maxPasswordBytes))
	}
	if v.RejectNumeric && isEntirelyNumeric(password) {
		invalid("entirely_numeric", "Password cannot be entirely numeric.")
	}
	if v.CheckCommonPasswords && isCommonPassword(password) {
		invalid("common_password", "This password is too common. Please choose a more secure password.")
	}
	if v.CheckUserSimilarity && isSimilarToUserAttributes(password, userAttributes) {
		invalid("too_similar", "Password is too similar to your username or email.")
	}

	return errors.Join(errs...)
}

// HelpTexts describes the enabled rules.
func (v *PasswordValidator) HelpTexts() []string {
	texts := []string{fmt.Sprintf("At least %d characters", v.MinLength)}
	if v.RejectNumeric {
		texts = append(texts, "Cannot be entirely numeric")
	}
	if v.CheckCommonPasswords {
		texts = append(texts, "Not a commonly used password")
	}
	if v.CheckUserSimilarity {
		texts = append(texts, "Not too similar to your username or email")
	}
	return texts
}

func isEntirelyNumeric(password string) bool {
	for _, r := range password {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(password) > 0
}

func isCommonPassword(password string) bool {
	_, exists := commonPasswords[strings.ToLower(password)]
	return exists
}

func isSimilarToUserAttributes(password string, attributes []string) bool {
	passwordLower := strings.ToLower(password)
	if passwordLower == "" {
		return false
	}

	for _, attr := range attributes {
		attrLower := strings.ToLower(attr)
		// The local part is what people reuse, not the domain.
		if at := strings.IndexByte(attrLower, '@'); at > 0 {
			attrLower = attrLower[:at]
		}
		if len(attrLower) < 3 {
			continue
		}

		if strings.Contains(passwordLower, attrLower) || strings.Contains(attrLower, passwordLower) {
			return true
		}
		if similarity(passwordLower, attrLower) > 0.7 {
			return true
		}
	}

	return false
}

func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	lcs := longestCommonSubsequence(a, b)
	return float64(lcs) / float64(max(len(a), len(b)))
}

func longestCommonSubsequence(a, b string) int {
	m, n := len(a), len(b)
	dp := make([][]int, m+1)
	for i := range dp {
		dp[i] = make([]int, n+1)
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else {
				dp[i][j] = max(dp[i-1][j], dp[i][j-1])
			}
		}
	}

	return dp[m][n]
}
