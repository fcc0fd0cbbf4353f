// Command gpsmonitor opens a serial port, drives the fcgps Driver against
// it, and prints solution updates to the console. It is grounded on
// cmd/gnss's interactive port-selection flow from the teacher repo,
// adapted from a one-shot NMEA read loop into a continuous fcgps.Tick poll.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	nmealib "github.com/adrianmo/go-nmea"
	geolib "github.com/kellydunn/golang-geo"

	"github.com/bramburn/fc-gps/internal/clock"
	"github.com/bramburn/fc-gps/internal/config"
	"github.com/bramburn/fc-gps/internal/port"
	"github.com/bramburn/fc-gps/internal/telemetry"

	"github.com/bramburn/fc-gps"
)

func main() {
	baud := flag.Int("baud", 9600, "initial baud rate to try")
	provider := flag.String("provider", "UBLOX", "provider: UBLOX or NMEA")
	dev := flag.Bool("debug", false, "enable development logging")
	replay := flag.String("replay", "", "decode a captured NMEA log file and exit, instead of opening a live port")
	flag.Parse()

	if *replay != "" {
		if err := replayNMEAFile(*replay); err != nil {
			log.Fatalf("replaying %s: %v", *replay, err)
		}
		return
	}

	portName := selectPort()
	if portName == "" {
		log.Fatal("No port selected. Exiting.")
	}

	fmt.Printf("Opening port %s at %d baud...\n", portName, *baud)
	sp, err := port.Open(portName, *baud)
	if err != nil {
		handleConnectionError(err, portName)
		os.Exit(1)
	}
	defer sp.Close()

	cfg := fcgps.Default()
	cfg.Provider = config.Provider(strings.ToUpper(*provider))

	logger := telemetry.Nop()
	if *dev {
		logger = telemetry.NewDevelopment()
	}
	defer logger.Sync()

	beeped := false
	drv := fcgps.New(cfg, sp, clock.New(), fcgps.Hooks{
		OnLEDToggle: func(on bool) { fmt.Printf("[led] %v\n", on) },
		OnBeep:      func() { beeped = true; fmt.Println("[beep] home fix requirements met") },
	})
	drv.SetLogger(logger)

	var lastStamp uint16
	armed := false
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		drv.Tick(armed)

		if changed, stamp := drv.HasNewData(lastStamp); changed {
			lastStamp = stamp
			sol := drv.Solution()
			fmt.Printf("fix=%v sats=%d lat=%d lon=%d alt=%dcm speed=%dcm/s healthy=%v beeped=%v\n",
				sol.Fix, sol.NumSat, sol.LatDeg7, sol.LonDeg7, sol.AltCm, sol.GroundSpeedCmS,
				drv.IsHealthy(), beeped)

			crossCheckHomeBearing(drv, sol.LatDeg7, sol.LonDeg7)
		}
	}
}

// crossCheckHomeBearing is a debug-only sanity check of the driver's
// flat-earth distance approximation against golang-geo's haversine
// great-circle implementation. The two are expected to diverge slightly
// over any real distance, since the production math (internal/geo)
// intentionally keeps the original's short-range Cartesian approximation
// rather than a great-circle formula.
func crossCheckHomeBearing(drv *fcgps.Driver, latDeg7, lonDeg7 int32) {
	homeLat, homeLon, _, ok := drv.HomePosition()
	if !ok {
		return
	}
	here := geolib.NewPoint(float64(latDeg7)/1e7, float64(lonDeg7)/1e7)
	home := geolib.NewPoint(float64(homeLat)/1e7, float64(homeLon)/1e7)

	greatCircleKm := here.GreatCircleDistance(home)
	prodCm, _ := drv.DistanceToHomeCmBearing()
	fmt.Printf("[debug] home distance: flat-earth=%.0fcm great-circle=%.0fcm\n", float64(prodCm), greatCircleKm*100000)
}

// replayNMEAFile decodes a captured log of raw NMEA sentences line by line
// with go-nmea, printing a human-readable summary. This is a debug aid for
// inspecting a capture offline, independent of the live internal/wire/nmea
// decoder the Driver itself uses.
func replayNMEAFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sentence, err := nmealib.Parse(line)
		if err != nil {
			fmt.Printf("%d: unparsable (%v): %s\n", lineNo, err, line)
			continue
		}
		fmt.Printf("%d: %s\n", lineNo, sentence)
	}
	return scanner.Err()
}

func selectPort() string {
	details, err := port.ListPorts()
	if err != nil {
		log.Fatalf("Error listing serial ports: %v", err)
	}
	if len(details) == 0 {
		log.Fatal("No serial ports found. Please check your connections.")
	}
	if len(details) == 1 {
		fmt.Printf("Only one port available. Using %s\n", details[0].Name)
		return details[0].Name
	}

	fmt.Println("Available serial ports:")
	for i, d := range details {
		info := fmt.Sprintf("%d: %s", i+1, d.Name)
		if d.IsUSB {
			info += fmt.Sprintf(" [USB: VID:%s PID:%s %s]", d.VID, d.PID, d.Product)
		}
		fmt.Println(info)
	}

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("Enter port number (or 0 to exit): ")
		input, _ := reader.ReadString('\n')
		input = strings.TrimSpace(input)

		var selection int
		if _, err := fmt.Sscanf(input, "%d", &selection); err == nil {
			if selection == 0 {
				return ""
			}
			if selection > 0 && selection <= len(details) {
				return details[selection-1].Name
			}
		}
		fmt.Println("Invalid selection. Please try again.")
	}
}

func handleConnectionError(err error, portName string) {
	log.Printf("Error opening serial port %s: %v", portName, err)
	fmt.Println("\nTroubleshooting tips:")
	fmt.Println("1. Check if the GNSS receiver is properly connected")
	fmt.Println("2. Verify that no other application is using the port")
	fmt.Println("3. Try a different USB port")
	fmt.Println("4. Check if the correct drivers are installed")
}
