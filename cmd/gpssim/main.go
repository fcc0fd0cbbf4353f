// Command gpssim drives fcgps against a synthetic byte source instead of a
// real receiver: a MON-VER reply answering the configurator's module
// probe, followed by a slowly-moving NAV-PVT stream. It replaces the
// teacher's physical-device assumption with an in-memory port.Pipe, the
// same adapter internal/task's own tests use, so the whole driver can be
// exercised without hardware.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"time"

	"github.com/bramburn/fc-gps/internal/clock"
	"github.com/bramburn/fc-gps/internal/interp"
	"github.com/bramburn/fc-gps/internal/port"
	"github.com/bramburn/fc-gps/internal/wire/ubx"

	"github.com/bramburn/fc-gps"
)

func main() {
	// Cold start alone (DETECT_BAUD -> CHANGE_BAUD -> all 21 CONFIGURE
	// steps) takes on the order of several thousand simulated milliseconds,
	// so the default tick count leaves enough room to actually reach
	// RECEIVING_DATA before the run ends.
	ticks := flag.Int("ticks", 1200, "number of driver ticks to simulate")
	startLat := flag.Float64("lat", 47.3977400, "starting latitude, degrees")
	startLon := flag.Float64("lon", 8.5455900, "starting longitude, degrees")
	speedCmS := flag.Int("speed", 300, "simulated ground speed, cm/s")
	flag.Parse()

	fromDevice := &bytes.Buffer{}
	toDevice := &bytes.Buffer{}
	p := port.NewPipe(fromDevice, toDevice)

	cfg := fcgps.Default()
	clk := clock.NewMock()
	drv := fcgps.New(cfg, p, clk, fcgps.Hooks{
		OnLEDToggle: func(on bool) { fmt.Printf("[led] %v\n", on) },
		OnBeep:      func() { fmt.Println("[beep]") },
	})

	// Answer the configurator's MON-VER probe once so it can leave
	// DETECT_BAUD immediately, matching an M8 module's hardware version.
	fromDevice.Write(monVerFrame(0x00080000))

	lat := *startLat
	lon := *startLon

	armed := true
	var lastStamp uint16
	homeLatched := false
	for i := 0; i < *ticks; i++ {
		clk.Add(10 * time.Millisecond)

		if drv.IsHealthy() {
			lat += 0.0000005 // about 5.6 cm of northward drift per tick
			fromDevice.Write(navPVTFrame(uint32(i)*200, lat, lon, uint32(*speedCmS)))
		}

		drv.Tick(armed)

		if !homeLatched && drv.HasFix() {
			drv.ResetHome()
			homeLatched = drv.HasFix()
		}

		if changed, stamp := drv.HasNewData(lastStamp); changed {
			lastStamp = stamp
			sol := drv.Solution()
			cm, bearing := drv.DistanceToHomeCmBearing()
			fmt.Printf("tick=%d fix=%v sats=%d lat=%d lon=%d home_dist_cm=%d bearing_cdeg=%d flown_cm=%d\n",
				i, sol.Fix, sol.NumSat, sol.LatDeg7, sol.LonDeg7, cm, bearing, drv.FlownDistanceCm())
		}
	}
}

func monVerFrame(hwVersion uint32) []byte {
	payload := make([]byte, 40)
	copy(payload[0:30], []byte("ROM BASE 0x118B2060           "))
	hwASCII := fmt.Sprintf("%08X", hwVersion)
	copy(payload[30:40], hwASCII)
	return ubx.Encode(interp.ClassMon, interp.MsgMonVer, payload)
}

// navPVTFrame builds a minimal 92-byte NAV-PVT payload carrying a valid 3D
// fix, the exact field offsets internal/interp.handleNavPVT reads.
func navPVTFrame(timeMs uint32, latDeg, lonDeg float64, speedCmS uint32) []byte {
	payload := make([]byte, 92)
	binary.LittleEndian.PutUint32(payload[0:4], timeMs)
	payload[20] = 3    // fixType: 3D fix
	payload[21] = 0x01 // flags: gnssFixOK
	payload[23] = 12   // numSV
	binary.LittleEndian.PutUint32(payload[24:28], uint32(int32(lonDeg*1e7)))
	binary.LittleEndian.PutUint32(payload[28:32], uint32(int32(latDeg*1e7)))
	binary.LittleEndian.PutUint32(payload[36:40], uint32(int32(50000))) // hMSL mm -> 5000cm
	binary.LittleEndian.PutUint32(payload[40:44], 250)                 // hAcc mm
	binary.LittleEndian.PutUint32(payload[44:48], 400)                 // vAcc mm
	binary.LittleEndian.PutUint32(payload[60:64], speedCmS*10)         // gSpeed mm/s
	binary.LittleEndian.PutUint16(payload[76:78], 150)                 // pDOP
	return ubx.Encode(interp.ClassNav, interp.MsgNavPVT, payload)
}
