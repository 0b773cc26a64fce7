// Package geodesy computes distances between GPS fixes on the WGS-84 ellipsoid.
package geodesy

import (
	"fmt"
	"math"
)

// WGS-84
const (
	semiMajorAxis = 6378137.0
	flattening    = 1 / 298.257223563
	semiMinorAxis = semiMajorAxis * (1 - flattening)

	maxIterations        = 200
	convergenceThreshold = 1e-12
)

// Location is a position in decimal degrees.
type Location struct {
	Latitude  float64
	Longitude float64
}

func (l Location) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", l.Latitude, l.Longitude)
}

// DistanceError reports a pair of locations the inverse formula could not solve.
type DistanceError struct {
	Prev Location
	Next Location
	Msg  string
}

func (e *DistanceError) Error() string {
	return fmt.Sprintf("failed to calculate distance between %v and %v: %s", e.Prev, e.Next, e.Msg)
}

// Distance returns the geodesic distance in meters between a and b using
// Vincenty's inverse formula.
func Distance(a, b Location) (float64, error) {
	L := toRadians(b.Longitude - a.Longitude)
	U1 := math.Atan((1 - flattening) * math.Tan(toRadians(a.Latitude)))
	U2 := math.Atan((1 - flattening) * math.Tan(toRadians(b.Latitude)))

	sinU1, cosU1 := math.Sincos(U1)
	sinU2, cosU2 := math.Sincos(U2)

	lambda := L
	var (
		sinSigma, cosSigma, sigma float64
		cosSqAlpha, cos2SigmaM    float64
		converged                 bool
	)

	for i := 0; i < maxIterations; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)

		sinSigma = math.Sqrt((cosU2*sinLambda)*(cosU2*sinLambda) +
			(cosU1*sinU2-sinU1*cosU2*cosLambda)*(cosU1*sinU2-sinU1*cosU2*cosLambda))
		if sinSigma == 0 {
			// coincident points
			return 0, nil
		}

		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)

		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha

		// Both points on the equator.
		cos2SigmaM = 0
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}

		C := flattening / 16 * cosSqAlpha * (4 + flattening*(4-3*cosSqAlpha))
		prev := lambda
		lambda = L + (1-C)*flattening*sinAlpha*
			(sigma+C*sinSigma*(cos2SigmaM+C*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

		if math.Abs(lambda-prev) <= convergenceThreshold {
			converged = true
			break
		}
	}

	if !converged || math.IsNaN(lambda) {
		return 0, &DistanceError{
			Prev: a,
			Next: b,
			Msg:  fmt.Sprintf("vincenty formula failed to converge after %d iterations", maxIterations),
		}
	}

	uSq := cosSqAlpha * (semiMajorAxis*semiMajorAxis - semiMinorAxis*semiMinorAxis) / (semiMinorAxis * semiMinorAxis)
	A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	return semiMinorAxis * A * (sigma - deltaSigma), nil
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
