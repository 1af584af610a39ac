package store

import (
	"fmt"

	"github.com/angiediaz0209/artistline/internal/models"
)

// ResolveContact picks the delivery method and target for a customer. An
// explicit notificationMethod wins; otherwise phone implies sms and email
// implies email, matching how the manage view falls back.
func ResolveContact(customer models.Customer) (string, string) {
	method := customer.NotificationMethod
	if method == "" || method == models.MethodNone {
		switch {
		case customer.Phone != "":
			method = models.MethodSMS
		case customer.Email != "":
			method = models.MethodEmail
		default:
			return models.MethodNone, ""
		}
	}
	switch method {
	case models.MethodSMS:
		return method, customer.Phone
	case models.MethodEmail:
		return method, customer.Email
	case models.MethodPush:
		return method, customer.PushToken
	default:
		return models.MethodNone, ""
	}
}

func CallMessage(customer models.Customer, queueName string) string {
	name := customer.GuestName
	if name == "" {
		name = customer.Name
	}
	if name == "" {
		name = "there"
	}
	if queueName == "" {
		queueName = "the queue"
	}
	return fmt.Sprintf("Hi %s, it's your turn at %s! Please head over now.", name, queueName)
}
