// Package email delivers one-time codes to users.
package email

const (
	purposeSignup = "signup"
	purposeReset  = "reset"
)

type message struct {
	Subject string
	Heading string
	Intro   string
}

func messageFor(purpose string) message {
	switch purpose {
	case purposeReset:
		return message{
			Subject: "Your RoomKartz password reset code",
			Heading: "Reset your password",
			Intro:   "Use the code below to choose a new password.",
		}
	default:
		return message{
			Subject: "Your RoomKartz verification code",
			Heading: "Verify your email address",
			Intro:   "Use the code below to finish signing up.",
		}
	}
}
