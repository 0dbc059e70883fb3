package paymob

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errBadMerchantOrderID = errors.New("malformed merchant order id")

// MerchantOrderID encodes the enrollment and course into the gateway correlation id
func MerchantOrderID(enrollmentID, courseID int64) string {
	return fmt.Sprintf("ENROLL_%d_%d", enrollmentID, courseID)
}

// ParseMerchantOrderID extracts the enrollment id from a merchant order id.
// At least three '_' separated segments are required and the second one is the enrollment id.
func ParseMerchantOrderID(id string) (int64, error) {
	parts := strings.Split(id, "_")
	if len(parts) < 3 {
		return 0, fmt.Errorf("%w: %q", errBadMerchantOrderID, id)
	}

	enrollmentID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errBadMerchantOrderID, id)
	}
	return enrollmentID, nil
}
