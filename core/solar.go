package core

import (
	"math"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/geoloc/model"
)

// SolarEphemeris holds the time-dependent part of the solar geometry.
type SolarEphemeris struct {
	// Declination of the sun in radians.
	Declination float64
	// EquationOfTime in minutes.
	EquationOfTime float64
	// UTCMinutes is the time of day in minutes since 00:00 UTC.
	UTCMinutes float64
}

// NewSolarEphemeris evaluates the fractional-year approximations for solar
// declination and the equation of time at t.
func NewSolarEphemeris(t time.Time) SolarEphemeris {
	t = t.UTC()
	year := t.Year()

	// go-satellite works in whole seconds; add the sub-second part back.
	jd := satellite.JDay(year, int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
	jd += float64(t.Nanosecond()) / 86400e9
	jan1 := satellite.JDay(year, 1, 1, 0, 0, 0)
	dayFrac := jd - jan1

	daysInYear := 365.0
	if isLeap(year) {
		daysInYear = 366
	}
	g := 2 * math.Pi / daysInYear * (dayFrac - 0.5)

	eqTime := 229.18 * (0.000075 + 0.001868*math.Cos(g) - 0.032077*math.Sin(g) -
		0.014615*math.Cos(2*g) - 0.040849*math.Sin(2*g))
	decl := 0.006918 - 0.399912*math.Cos(g) + 0.070257*math.Sin(g) -
		0.006758*math.Cos(2*g) + 0.000907*math.Sin(2*g) -
		0.002697*math.Cos(3*g) + 0.00148*math.Sin(3*g)

	minutes := float64(t.Hour()*60+t.Minute()) + (float64(t.Second())+float64(t.Nanosecond())/1e9)/60
	return SolarEphemeris{Declination: decl, EquationOfTime: eqTime, UTCMinutes: minutes}
}

// At returns the solar zenith and azimuth in degrees at a ground point.
// Azimuth is clockwise from north in [0, 360).
func (e SolarEphemeris) At(lat, lon float64) (zenith, azimuth float64) {
	phi := lat * deg2rad
	trueSolarMinutes := e.UTCMinutes + e.EquationOfTime + 4*lon
	ha := (trueSolarMinutes/4 - 180) * deg2rad

	cosZ := clip(math.Sin(phi)*math.Sin(e.Declination) + math.Cos(phi)*math.Cos(e.Declination)*math.Cos(ha))
	zenith = math.Acos(cosZ) * rad2deg

	azimuth = math.Atan2(math.Sin(ha), math.Cos(ha)*math.Sin(phi)-math.Tan(e.Declination)*math.Cos(phi))*rad2deg + 180
	azimuth = math.Mod(azimuth, 360)
	if azimuth < 0 {
		azimuth += 360
	}
	return zenith, azimuth
}

// SolarAngles computes solar zenith and azimuth grids at scan time t.
// Off-disk pixels in the input stay off-disk in both outputs.
func SolarAngles(lat, lon *model.Grid, t time.Time, bad model.BadValues) (zen, azm *model.Grid) {
	eph := NewSolarEphemeris(t)
	zen = model.NewGrid(lat.Lines, lat.Samples)
	azm = model.NewGrid(lat.Lines, lat.Samples)
	for i := range lat.Data {
		la, lo := lat.Data[i], lon.Data[i]
		if !validLatLon(la, lo, bad) {
			zen.Data[i] = bad.OffOfDisk
			azm.Data[i] = bad.OffOfDisk
			continue
		}
		zen.Data[i], azm.Data[i] = eph.At(la, lo)
	}
	return zen, azm
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
