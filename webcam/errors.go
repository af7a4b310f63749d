package webcam

import "fmt"

// NetworkError covers transport failures, timeouts, unexpected statuses,
// bodies that fail to decode, and calls the service refused.
type NetworkError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Status != 0 && e.Message != "":
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// ServiceError is a well-formed refusal from inference, carrying the
// service's own message.
type ServiceError struct {
	Op      string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Describe turns an error from this package into the text shown to a user.
func Describe(err error) string {
	switch e := err.(type) {
	case *ServiceError:
		return e.Message
	case *NetworkError:
		if e.Message != "" && e.Err == nil {
			return e.Message
		}
		return e.Error()
	default:
		return err.Error()
	}
}
