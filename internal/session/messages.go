package session

import "fmt"

const (
	messageUserNotFound        = "ユーザーが見つかりませんでした"
	messageNothingToPlot       = "プロットに必要なだけのデータがありません。"
	messageCommandFailed       = ":warning: **コマンドの実行に失敗しました。**"
	messageInvalidCommand      = ":warning: **コマンドの形式が正しくありません。**"
	messageStatNotFoundFormat  = "%sさんの限界ポイントに関する情報は見つかりませんでした"
	messageWelcomeBackFormat   = "Welcome back <@!%s>, your session has resumed!"
	messageLeaveSummaryFormat  = "<@!%s>\n限界ポイント: %dpt (+%dpt)\n総VC時間: %.2fh (+%.2fh)"
	messageUserStatFormat      = "```\n%s (using formula %s)\n  - 限界ポイント: %dpt.\n  - 合計VC時間: %.2fh\n  - 限界効率: %.2f%%\n```"
	messageRankingHeaderFormat = "sorted by %s, using formula %s"
	messageRankingRowFormat    = "#%02d %5dpt. %7.2fh %5.2f%%限界 %s"
)

func welcomeBackMessage(userID string) string {
	return fmt.Sprintf(messageWelcomeBackFormat, userID)
}

func statNotFoundMessage(name string) string {
	return fmt.Sprintf(messageStatNotFoundFormat, name)
}

func invalidCommandMessage(err error, usage string) string {
	return fmt.Sprintf("%s\n%s\n%s", messageInvalidCommand, err.Error(), usage)
}
