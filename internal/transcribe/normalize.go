package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrNoTranscriptData は既知のどの形にも一致する文字起こしデータが
// 結果に含まれていない場合のエラー。
var ErrNoTranscriptData = errors.New("結果に文字起こしデータが含まれていません")

// ProviderError はプロバイダが終端のエラーステータスを報告した場合のエラー。
type ProviderError struct {
	Code string
}

// Error はerrorインターフェースを実装する。
func (e *ProviderError) Error() string {
	return fmt.Sprintf("文字起こしプロバイダがエラーを返しました: %s", e.Code)
}

// SpeakerLabel は話者ラベルを表す。プロバイダは話者を数値（0, 1, ...）でも
// 文字列（"A", "B"）でも返すため、どちらも受け付けて文字列に正規化する。
// 欠落時は "Unknown" になる。
type SpeakerLabel string

// UnmarshalJSON は数値・文字列の両方の話者表現を受け付ける。
func (s *SpeakerLabel) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SpeakerLabel(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err == nil {
		*s = SpeakerLabel(num.String())
		return nil
	}
	return fmt.Errorf("話者ラベルのパースに失敗: %s", string(data))
}

// String は話者ラベルを返す。未設定の場合は "Unknown"。
func (s SpeakerLabel) String() string {
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

// Utterance は話者・本文・開始秒を持つ発話単位。
type Utterance struct {
	Speaker SpeakerLabel `json:"speaker"`
	Text    string       `json:"text"`
	Start   float64      `json:"start"`
}

// Segment は話者と本文のみを持つ区切り単位（タイムスタンプなし）。
type Segment struct {
	Speaker SpeakerLabel `json:"speaker"`
	Text    string       `json:"text"`
}

// TranscriptionData は結果内の transcription 値を表す。
// プロバイダはオブジェクト（utterances / full_transcript / segments のいずれかを
// 持つ）と裸の文字列の両方を返すことがあるため、カスタムUnmarshalで吸収する。
type TranscriptionData struct {
	Utterances     []Utterance
	FullTranscript *string
	Segments       []Segment

	// Raw は transcription が裸の文字列だった場合の値。IsString が真のとき有効。
	Raw      string
	IsString bool
}

// UnmarshalJSON はオブジェクト形と文字列形の両方を受け付ける。
func (d *TranscriptionData) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		d.Raw = s
		d.IsString = true
		return nil
	}

	var obj struct {
		Utterances     []Utterance `json:"utterances"`
		FullTranscript *string     `json:"full_transcript"`
		Segments       []Segment   `json:"segments"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("transcriptionのパースに失敗: %w", err)
	}

	d.Utterances = obj.Utterances
	d.FullTranscript = obj.FullTranscript
	d.Segments = obj.Segments
	return nil
}

// TranscriptionResult はプロバイダの result オブジェクトを表す。
// 文字起こしデータは transcription 配下にネストされる場合と、
// resultのルート直下に置かれる場合の両方がある。
type TranscriptionResult struct {
	Transcription *TranscriptionData `json:"transcription"`
	Utterances    []Utterance        `json:"utterances"`
	Segments      []Segment          `json:"segments"`
}

// Normalize はプロバイダの多様なレスポンス形を単一のプレーンテキストに正規化する。
//
// 判定順序（ネスト優先）:
//  1. transcription.utterances — 発話ごとに "Speaker {話者} | MM:SS.mmm" 形式
//  2. transcription.full_transcript — そのまま返す
//  3. transcription.segments — "[{話者}]: {本文}" 形式
//  4. transcription が裸の文字列 — そのまま返す
//  5. ルート直下の utterances / segments
//
// どの形にも一致しない場合は ErrNoTranscriptData を返す。
func Normalize(result *TranscriptionResult) (string, error) {
	if result == nil {
		return "", ErrNoTranscriptData
	}

	if t := result.Transcription; t != nil {
		switch {
		case len(t.Utterances) > 0:
			return renderUtterances(t.Utterances), nil
		case t.FullTranscript != nil:
			return *t.FullTranscript, nil
		case len(t.Segments) > 0:
			return renderSegments(t.Segments), nil
		case t.IsString:
			return t.Raw, nil
		}
	}

	if len(result.Utterances) > 0 {
		return renderUtterances(result.Utterances), nil
	}
	if len(result.Segments) > 0 {
		return renderSegments(result.Segments), nil
	}

	return "", ErrNoTranscriptData
}

// renderUtterances は発話リストをタイムスタンプ付きテキストに変換する。
// 本文が空白のみの発話はスキップする。
func renderUtterances(utterances []Utterance) string {
	var b strings.Builder
	for _, u := range utterances {
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "Speaker %s | %s\n%s\n\n", u.Speaker, formatTimestamp(u.Start), u.Text)
	}
	return strings.TrimSpace(b.String())
}

// renderSegments は区切りリストを話者ラベル付きテキストに変換する。
// 本文が空白のみの区切りはスキップする。
func renderSegments(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		fmt.Fprintf(&b, "[%s]: %s\n", s.Speaker, s.Text)
	}
	return strings.TrimSpace(b.String())
}

// formatTimestamp は秒数を MM:SS.mmm 形式に変換する。
// 分・秒・ミリ秒はいずれも切り捨てで、それぞれ2/2/3桁にゼロ埋めする。
func formatTimestamp(seconds float64) string {
	minutes := int(seconds / 60)
	secs := int(math.Mod(seconds, 60))
	millis := int(math.Mod(seconds, 1) * 1000)
	return fmt.Sprintf("%02d:%02d.%03d", minutes, secs, millis)
}
