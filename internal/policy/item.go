package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/redaqt/pdo-go/internal/apierrors"
)

// ErrInvalidPolicy is returned when an item cannot be built from its input.
var ErrInvalidPolicy = apierrors.ErrInvalidPolicy

// conditionLayouts are the accepted ISO-8601 forms for date conditions.
var conditionLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseCondition parses an ISO-8601 date condition. Values without a zone
// are read in loc.
func ParseCondition(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range conditionLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not an ISO-8601 date", ErrInvalidPolicy, value)
}

// BuildItem builds the policy item for protocol from the user-supplied
// condition. now is used to reject do_not_open_after dates that have already
// passed.
//
//	no_policy           no condition          auto
//	lock_to_user        target alias, Equal   auto
//	do_not_open_before  date, Greater         auto
//	do_not_open_after   date, Less            auto
//	open_with_keyword   passphrase, Equal     interactive
//	open_with_pin       PIN form of 6, Equal  interactive
//
// lock_to_device is reserved and rejected.
func BuildItem(protocol Protocol, condition string, now time.Time) (Item, error) {
	item := Item{
		Protocol: protocol,
		Target:   []string{},
		Auto:     true,
	}

	switch protocol {
	case NoPolicy:

	case LockToUser:
		alias := strings.TrimSpace(condition)
		if alias == "" {
			return Item{}, fmt.Errorf("%w: %s requires a target alias", ErrInvalidPolicy, protocol)
		}
		item.Target = []string{alias}
		item.Action = ptr(ActionEqual)
		item.Condition = ptr(alias)

	case DoNotOpenBefore, DoNotOpenAfter:
		t, err := ParseCondition(condition, now.Location())
		if err != nil {
			return Item{}, err
		}
		if protocol == DoNotOpenAfter && !t.After(now) {
			return Item{}, fmt.Errorf("%w: %s date must be in the future", ErrInvalidPolicy, protocol)
		}
		item.Action = ptr(ActionGreater)
		if protocol == DoNotOpenAfter {
			item.Action = ptr(ActionLess)
		}
		item.Condition = ptr(strings.TrimSpace(condition))

	case OpenWithKeyword:
		if condition == "" {
			return Item{}, fmt.Errorf("%w: %s requires a passphrase", ErrInvalidPolicy, protocol)
		}
		item.Auto = false
		item.Action = ptr(ActionEqual)
		item.Condition = ptr(condition)

	case OpenWithPIN:
		item.Auto = false
		item.Form = Form{Method: ptr(FormMethodPIN), Length: PINLength}
		item.Action = ptr(ActionEqual)

	case LockToDevice:
		return Item{}, fmt.Errorf("%w: %s is reserved", ErrInvalidPolicy, protocol)

	default:
		return Item{}, fmt.Errorf("%w: unknown protocol %q", ErrInvalidPolicy, protocol)
	}

	return item, nil
}

// Validate checks the form invariant: only PIN forms carry a length.
func (i Item) Validate() error {
	isPIN := i.Form.Method != nil && *i.Form.Method == FormMethodPIN
	switch {
	case isPIN && i.Form.Length <= 0:
		return fmt.Errorf("%w: PIN form without length", ErrInvalidPolicy)
	case !isPIN && i.Form.Length != 0:
		return fmt.Errorf("%w: form length %d without PIN method", ErrInvalidPolicy, i.Form.Length)
	}
	return nil
}
