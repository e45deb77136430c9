// framed는 로컬 개발용 모의 프레임 데몬입니다. 서버가 사용하는 쿼리
// 프로토콜을 그대로 구현하며, 움직이는 컬러 밴드 테스트 패턴을 프레임으로
// 제공합니다.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

func main() {
	port := flag.Int("port", 5555, "리슨 포트")
	flag.Parse()

	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", *port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen failed: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()

	fmt.Printf("framed listening on 127.0.0.1:%d\n", *port)

	for {
		conn, err := ln.Accept()
		if err != nil {
			fmt.Fprintf(os.Stderr, "accept failed: %v\n", err)
			return
		}
		go serve(conn)
	}
}

// session은 연결 하나의 데몬 측 상태
type session struct {
	conn      net.Conn
	connected bool
	capturing bool
	width     int
	height    int
	tick      int
}

func serve(conn net.Conn) {
	defer conn.Close()

	s := &session{conn: conn}
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		if err := s.handle(strings.TrimRight(line, "\r\n")); err != nil {
			return
		}
	}
}

// handle은 쿼리 한 줄을 처리합니다
func (s *session) handle(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return s.reply("err empty query")
	}

	switch fields[0] {
	case "connect":
		s.connected = true
		return s.reply("ok")

	case "disconnect":
		if s.capturing {
			return s.reply("err capture session still open")
		}
		s.connected = false
		return s.reply("ok")

	case "info":
		info := "framed mock camera, formats=RGB4, max=1920x1080"
		if err := s.reply(fmt.Sprintf("ok %d", len(info))); err != nil {
			return err
		}
		_, err := s.conn.Write([]byte(info))
		return err

	case "start":
		if !s.connected {
			return s.reply("err not connected")
		}
		if len(fields) != 4 {
			return s.reply("err malformed start query")
		}
		w, err1 := strconv.Atoi(fields[1])
		h, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
			return s.reply("err invalid geometry")
		}
		s.width, s.height = w, h
		s.capturing = true
		s.tick = 0
		return s.reply("ok")

	case "stop":
		s.capturing = false
		return s.reply("ok")

	case "frame":
		if !s.capturing {
			return s.reply("err no capture session")
		}
		if len(fields) != 7 {
			return s.reply("err malformed frame query")
		}
		frameLen, err1 := strconv.Atoi(fields[1])
		previewLen, err2 := strconv.Atoi(fields[2])
		if err1 != nil || err2 != nil || frameLen < 0 || previewLen < 0 {
			return s.reply("err invalid buffer sizes")
		}
		gains, err := parseGains(fields[3:7])
		if err != nil {
			return s.reply("err invalid gains")
		}

		payload := make([]byte, frameLen+previewLen)
		s.renderPattern(payload[:frameLen], gains)
		copy(payload[frameLen:], payload[:min(frameLen, previewLen)])
		s.tick++

		if err := s.reply(fmt.Sprintf("ok %d", len(payload))); err != nil {
			return err
		}
		_, werr := s.conn.Write(payload)
		return werr

	default:
		return s.reply(fmt.Sprintf("err unknown query %q", fields[0]))
	}
}

// reply는 상태 줄 하나를 보냅니다
func (s *session) reply(status string) error {
	_, err := fmt.Fprintf(s.conn, "%s\n", status)
	return err
}

// parseGains는 화이트 밸런스 3채널 게인과 노출 보정값을 파싱합니다
func parseGains(fields []string) ([4]float64, error) {
	var gains [4]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return gains, err
		}
		gains[i] = v
	}
	return gains, nil
}

// renderPattern은 수직 컬러 밴드가 tick마다 이동하는 RGB32 패턴을 그립니다
func (s *session) renderPattern(buf []byte, gains [4]float64) {
	if s.width <= 0 {
		return
	}

	bands := [][3]byte{
		{255, 255, 255}, {255, 255, 0}, {0, 255, 255}, {0, 255, 0},
		{255, 0, 255}, {255, 0, 0}, {0, 0, 255}, {0, 0, 0},
	}

	bandWidth := s.width / len(bands)
	if bandWidth == 0 {
		bandWidth = 1
	}

	exposure := gains[3]
	for i := 0; i+3 < len(buf); i += 4 {
		x := (i / 4) % s.width
		band := bands[((x+s.tick)/bandWidth)%len(bands)]
		buf[i] = scale(band[0], gains[0]*exposure)
		buf[i+1] = scale(band[1], gains[1]*exposure)
		buf[i+2] = scale(band[2], gains[2]*exposure)
		buf[i+3] = 255
	}
}

// scale은 채널값에 게인을 적용하고 0..255로 클램프합니다
func scale(v byte, gain float64) byte {
	scaled := float64(v) * gain
	if scaled > 255 {
		return 255
	}
	if scaled < 0 {
		return 0
	}
	return byte(scaled)
}
