package orders

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberPrefix = "SHOP"

// numberAlphabet leaves out 0, 1, I, L and O so numbers survive being read
// out over the phone.
const numberAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// OrderNumberGenerator produces customer-facing order numbers such as
// SHOP-261016-K7QXM3P: the UTC day the order was placed, six characters keyed
// by a server secret so numbers cannot be enumerated from user ids, and a
// trailing check character.
type OrderNumberGenerator struct {
	secret string
	now    func() time.Time
}

func NewOrderNumberGenerator(secret string) *OrderNumberGenerator {
	return &OrderNumberGenerator{secret: secret, now: time.Now}
}

func (g *OrderNumberGenerator) Generate(userID int64) string {
	mac := hmac.New(sha256.New, []byte(g.secret))
	fmt.Fprintf(mac, "uid:%d|nonce:%s", userID, uuid.NewString())
	sum := mac.Sum(nil)

	var tag strings.Builder
	for _, b := range sum[:6] {
		tag.WriteByte(numberAlphabet[int(b)%len(numberAlphabet)])
	}

	day := g.now().UTC().Format("060102")
	body := day + tag.String()
	return fmt.Sprintf("%s-%s-%s%c", orderNumberPrefix, day, tag.String(), checkChar(body))
}

// ValidOrderNumber reports whether s is well formed. It says nothing about
// whether such an order exists.
func ValidOrderNumber(s string) bool {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != orderNumberPrefix {
		return false
	}
	day, tail := parts[1], parts[2]
	if len(day) != 6 || len(tail) != 7 {
		return false
	}
	if _, err := time.Parse("060102", day); err != nil {
		return false
	}
	for i := 0; i < len(tail); i++ {
		if strings.IndexByte(numberAlphabet, tail[i]) < 0 {
			return false
		}
	}
	return checkChar(day+tail[:6]) == tail[6]
}

// checkChar is a position-weighted sum over the alphabet. It catches any
// single wrong character and most swaps of neighbours.
func checkChar(body string) byte {
	n := len(numberAlphabet)
	sum := 0
	for i := 0; i < len(body); i++ {
		v := strings.IndexByte(numberAlphabet, body[i])
		if v < 0 {
			// Digits 0 and 1 only appear in the date block.
			v = int(body[i]) % n
		}
		sum += (i + 1) * v
	}
	return numberAlphabet[sum%n]
}
