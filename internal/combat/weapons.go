package combat

// WeaponProfile is the slice of an equipped weapon the controller
// needs for button graying: reach for melee, ranged-ness for ammo
// checks. Legality stays server-side; this only prevents obviously
// doomed requests.
type WeaponProfile struct {
	Name   string
	Reach  int
	Ranged bool
}

// Unarmed is the fallback profile when no equipment lookup is wired.
// Reach zero means attacks only land at contact.
var Unarmed = WeaponProfile{Name: "Unarmed", Reach: 0}

// WeaponSource resolves the player's current main-hand weapon.
type WeaponSource interface {
	MainHand() WeaponProfile
}

// WeaponSourceFunc adapts a plain function to WeaponSource.
type WeaponSourceFunc func() WeaponProfile

// MainHand calls the wrapped function.
func (f WeaponSourceFunc) MainHand() WeaponProfile {
	return f()
}

// StaticWeapon returns a source that always reports the same profile.
func StaticWeapon(profile WeaponProfile) WeaponSource {
	return WeaponSourceFunc(func() WeaponProfile { return profile })
}

// attackReady reports whether the main attack can land given the
// current range: melee must be within reach, ranged must have ammo.
// A nil ammo figure reads as untracked, not empty.
func attackReady(s Session, weapon WeaponProfile) bool {
	if weapon.Ranged {
		return s.AmmoRemaining == nil || *s.AmmoRemaining > 0
	}
	return s.Range <= weapon.Reach
}
