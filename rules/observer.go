package rules

import "github.com/brensch/runger/game"

// NotificationKind names a visible change emitted while resolving a tick.
type NotificationKind uint8

const (
	Moved NotificationKind = iota
	Turned
	Ate
	Killed
	Died
	FoodPlaced
	WallBuilt
	Sighted
)

var notificationNames = [...]string{
	"moved", "turned", "ate", "killed", "died", "food_placed", "wall_built", "sighted",
}

func (k NotificationKind) String() string {
	if int(k) < len(notificationNames) {
		return notificationNames[k]
	}
	return "unknown"
}

// Notification is a presentation side-channel event. Player is -1 when the
// change is not tied to a player (e.g. spawned food).
type Notification struct {
	Turn     int32
	Kind     NotificationKind
	Player   game.PlayerID
	Pos      game.Point
	Facing   game.Facing
	Occupant game.Occupant
	Status   game.Status
}

// Observer receives notifications synchronously from the resolver. It must
// not mutate simulation state.
type Observer interface {
	Notify(n Notification)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(n Notification)

func (f ObserverFunc) Notify(n Notification) { f(n) }

// Observers fans a notification out to several observers in order.
type Observers []Observer

func (o Observers) Notify(n Notification) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(n)
		}
	}
}
