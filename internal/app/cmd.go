package app

// Command はCLIのサブコマンドを表す。
type Command string

const (
	// CommandLogin はパスワードログイン（必要ならMFA検証）を実行する。
	CommandLogin Command = "login"
	// CommandLogout はローカルのセッションを破棄する。
	CommandLogout Command = "logout"
	// CommandRegister は新規アカウントを登録する。
	CommandRegister Command = "register"
	// CommandWhoami は現在のセッションの要約を表示する。
	CommandWhoami Command = "whoami"
	// CommandRole はアクティブなロールを表示・変更する。
	CommandRole Command = "role"
	// CommandDevices は信頼済みデバイスを管理する。
	CommandDevices Command = "devices"
	// CommandHistory はログイン履歴を表示する。
	CommandHistory Command = "history"
	// CommandPasswd はパスワードの変更・リセットを行う。
	CommandPasswd Command = "passwd"
	// CommandMFA はMFAのセットアップ・無効化を行う。
	CommandMFA Command = "mfa"
	// CommandPredict は画像から作物を判定する。
	CommandPredict Command = "predict"
	// CommandNews は製品のお知らせを表示する。
	CommandNews Command = "news"
	// CommandLang は表示言語を表示・変更する。
	CommandLang Command = "lang"
	// CommandVersion はバージョンを表示する。
	CommandVersion Command = "version"
	// CommandHelp は使い方を表示する。
	CommandHelp Command = "help"
)

// ParseCommand はコマンドライン引数からサブコマンドと残りの引数を解析する。
// 引数が空またはサポート外のコマンドの場合はCommandHelpを返す。
func ParseCommand(args []string) (Command, []string) {
	if len(args) == 0 {
		return CommandHelp, nil
	}

	switch args[0] {
	case "login":
		return CommandLogin, args[1:]
	case "logout":
		return CommandLogout, args[1:]
	case "register":
		return CommandRegister, args[1:]
	case "whoami":
		return CommandWhoami, args[1:]
	case "role":
		return CommandRole, args[1:]
	case "devices":
		return CommandDevices, args[1:]
	case "history":
		return CommandHistory, args[1:]
	case "passwd":
		return CommandPasswd, args[1:]
	case "mfa":
		return CommandMFA, args[1:]
	case "predict":
		return CommandPredict, args[1:]
	case "news":
		return CommandNews, args[1:]
	case "lang":
		return CommandLang, args[1:]
	case "version":
		return CommandVersion, args[1:]
	default:
		return CommandHelp, nil
	}
}
