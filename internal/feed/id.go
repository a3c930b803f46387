// Package feed はフィードの取得・パースとエピソード一覧の集約を提供する。
// エピソードIDの導出、音声エンクロージャのフィルタ、日付によるフィルタを含む。
package feed

import (
	"crypto/md5"
	"encoding/hex"

	"github.com/mmcdole/gofeed"
)

// unknownTitle はタイトルを持たないエントリのプレースホルダ。
// エントリにGUIDもタイトルもない場合でもIDが決定的になるよう、
// エラーにせず固定文字列をハッシュ対象にする。
const unknownTitle = "Unknown Title"

// DeriveEpisodeID はフィードURLとエントリから安定したエピソードIDを導出する。
//
// エントリ側の識別子はGUIDがあればそれを、なければタイトルのMD5先頭12桁を使う。
// フィードURLのMD5先頭8桁をプレフィックスとして "feedHash_episodeBase" 形式で返す。
// 同一フィード・同一エントリに対してプロセス再起動をまたいでも同じIDになる。
//
// 既知の制限: GUIDを持たない同一タイトルのエントリは同じIDに収束する。
// これは仕様上許容されたトレードオフであり、暗黙に修正してはならない。
func DeriveEpisodeID(feedURL string, entry *gofeed.Item) string {
	episodeBase := entry.GUID
	if episodeBase == "" {
		title := entry.Title
		if title == "" {
			title = unknownTitle
		}
		episodeBase = md5Hex(title)[:12]
	}

	feedHash := md5Hex(feedURL)[:8]
	return feedHash + "_" + episodeBase
}

// md5Hex は文字列のMD5ハッシュを16進文字列で返す。
// 衝突耐性よりも安定性とID長の短さを優先している（セキュリティ用途ではない）。
func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
