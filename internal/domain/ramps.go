package domain

// DefaultRamps returns the launch ramps on Lake Powell with their minimum safe
// and usable lake elevations.
func DefaultRamps() []Ramp {
	return []Ramp{
		{Name: "Bullfrog North Ramp", MinSafeElevation: 3529, MinUsableElevation: 3528, Location: "Bullfrog, UT"},
		{Name: "Antelope Point Business Ramp", MinSafeElevation: 3540, MinUsableElevation: 3539, Location: "Antelope Point, AZ"},
		{Name: "Bullfrog Spur (Boats < 25')", MinSafeElevation: 3549, MinUsableElevation: 3548, Location: "Bullfrog, UT"},
		{Name: "Wahweap (Main Launch)", MinSafeElevation: 3550, MinUsableElevation: 3549, Location: "Wahweap, AZ"},
		{Name: "Halls Crossing (use at own risk)", MinSafeElevation: 3556, MinUsableElevation: 3555, Location: "Halls Crossing, UT"},
		{Name: "Stateline Launch", MinSafeElevation: 3520, MinUsableElevation: 3519, Location: "Stateline, UT"},
		{Name: "Bullfrog (Main Launch)", MinSafeElevation: 3578, MinUsableElevation: 3577, Location: "Bullfrog, UT"},
		{Name: "Castle Rock Cut-Off", MinSafeElevation: 3583, MinUsableElevation: 3582, Location: "Castle Rock, UT"},
		{Name: "Antelope Point Public Ramp", MinSafeElevation: 3588, MinUsableElevation: 3587, Location: "Antelope Point, AZ"},
		{Name: "Dominguez Butte Cut-Off", MinSafeElevation: 3602, MinUsableElevation: 3601, Location: "Dominguez Butte, UT"},
		{Name: "Gunsight to Padre Bay Cut-Off", MinSafeElevation: 3613, MinUsableElevation: 3612, Location: "Gunsight, UT"},
		{Name: "Hite", MinSafeElevation: 3650, MinUsableElevation: 3649, Location: "Hite, UT"},
		{Name: "Farley Canyon", MinSafeElevation: 3653, MinUsableElevation: 3652, Location: "Farley Canyon, UT"},
		{Name: "Copper Canyon", MinSafeElevation: 3663, MinUsableElevation: 3662, Location: "Copper Canyon, UT"},
		{Name: "Bullfrog to Halls Creek Cut-Off", MinSafeElevation: 3670, MinUsableElevation: 3669, Location: "Bullfrog, UT"},
		{Name: "Piute Farms", MinSafeElevation: 3682, MinUsableElevation: 3681, Location: "Piute Farms, UT"},
	}
}
